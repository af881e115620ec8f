package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cribsync/lib/apierr"
	"cribsync/lib/platforms/brightwheel"
	"cribsync/lib/platforms/nara"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("services/transfer")

// Source is the origin platform: children and their activity feed.
type Source interface {
	ListStudents(ctx context.Context) ([]brightwheel.Student, error)
	ListActivities(ctx context.Context, studentID string, since, until time.Time) ([]brightwheel.Activity, error)
}

// Destination is the target platform. A nil Destination puts the whole
// run in read-only mode.
type Destination interface {
	ListBabies(ctx context.Context) ([]nara.Baby, error)
	ListActivities(ctx context.Context, babyID string, since, until time.Time) ([]nara.Record, error)
	CreateActivity(ctx context.Context, babyID string, rec nara.Record) (string, error)
}

type State int32

const (
	StateInit State = iota
	StateAuthenticating
	StateFetching
	StateMatching
	StateTransforming
	StateUploading
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticating:
		return "authenticating"
	case StateFetching:
		return "fetching"
	case StateMatching:
		return "matching"
	case StateTransforming:
		return "transforming"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Options struct {
	// executed during the authenticating step; both clients should be
	// logged in by the time it returns
	Login func(ctx context.Context) error
	// execute everything except the destination write
	DryRun bool
	// date window to transfer
	Since time.Time
	Until time.Time
	// bounded upload pool size
	Workers int
	// total tries per rate-limited call before it fails the item
	MaxAttempts int
	// initial backoff delay
	RetryDelay time.Duration
}

// ItemError is a single activity (or per-student fetch) failure; these
// never abort the batch.
type ItemError struct {
	StudentID  string
	ActivityID string
	Kind       brightwheel.Kind
	Err        error
}

type Summary struct {
	DryRun   bool
	ReadOnly bool

	Total       int
	Uploaded    int
	Duplicates  int
	Unsupported int
	Failed      int

	Unmatched []Unmatched
	Errors    []ItemError
}

type Service struct {
	src   Source
	dst   Destination
	opts  Options
	state atomic.Int32

	uploadedCtr metric.Int64Counter
	skippedCtr  metric.Int64Counter
	failedCtr   metric.Int64Counter
}

func New(src Source, dst Destination, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Until.IsZero() {
		opts.Until = time.Now()
	}
	if opts.Since.IsZero() {
		opts.Since = opts.Until.AddDate(0, 0, -7)
	}

	meter := otel.Meter("services/transfer")
	uploaded, _ := meter.Int64Counter("transfer.activities.uploaded")
	skipped, _ := meter.Int64Counter("transfer.activities.skipped")
	failed, _ := meter.Int64Counter("transfer.activities.failed")

	return &Service{
		src:         src,
		dst:         dst,
		opts:        opts,
		uploadedCtr: uploaded,
		skippedCtr:  skipped,
		failedCtr:   failed,
	}
}

func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
	slog.Debug("transfer state", "state", st.String())
}

type uploadJob struct {
	studentID  string
	babyID     string
	activityID string
	kind       brightwheel.Kind
	rec        nara.Record
}

// Run drives the whole transfer. The returned error is non-nil only for
// batch-fatal conditions (authentication, total fetch failure);
// per-item failures land in the Summary.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	summary := Summary{DryRun: s.opts.DryRun, ReadOnly: s.dst == nil}

	fail := func(err error) (Summary, error) {
		s.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	s.setState(StateAuthenticating)
	if s.opts.Login != nil {
		if err := s.opts.Login(ctx); err != nil {
			return fail(fmt.Errorf("authentication: %w", err))
		}
	}

	s.setState(StateFetching)
	students, err := s.src.ListStudents(ctx)
	if err != nil {
		return fail(fmt.Errorf("fetch students: %w", err))
	}
	slog.InfoContext(ctx, "fetched students", "count", len(students))
	if len(students) == 0 {
		slog.WarnContext(ctx, "no students found, nothing to sync")
		s.setState(StateDone)
		return summary, nil
	}

	var babies []nara.Baby
	if s.dst != nil {
		babies, err = s.dst.ListBabies(ctx)
		if err != nil {
			return fail(fmt.Errorf("fetch babies: %w", err))
		}
		slog.InfoContext(ctx, "fetched babies", "count", len(babies))
	} else {
		slog.WarnContext(ctx, "no destination credentials, running read-only")
	}

	s.setState(StateMatching)
	pairs := map[string]string{}
	if s.dst != nil {
		match := MatchChildren(students, babies)
		pairs = match.Pairs
		summary.Unmatched = match.Unmatched
		for _, um := range match.Unmatched {
			slog.WarnContext(
				ctx, "could not match child",
				"student", um.Student.FirstName+" "+um.Student.LastName,
				"reason", um.Reason,
				"closest", um.Suggestion,
			)
		}
	} else {
		// read-only runs process everyone; there is nothing to pair with
		for _, student := range students {
			pairs[student.ID] = ""
		}
	}

	s.setState(StateTransforming)
	var jobs []uploadJob
	for _, student := range students {
		babyID, ok := pairs[student.ID]
		if !ok {
			continue
		}
		studentJobs := s.prepareStudent(ctx, student, babyID, &summary)
		jobs = append(jobs, studentJobs...)
	}

	s.setState(StateUploading)
	s.uploadAll(ctx, jobs, &summary)

	s.uploadedCtr.Add(ctx, int64(summary.Uploaded))
	s.skippedCtr.Add(ctx, int64(summary.Duplicates+summary.Unsupported))
	s.failedCtr.Add(ctx, int64(summary.Failed))
	span.SetAttributes(
		attribute.Int("total", summary.Total),
		attribute.Int("uploaded", summary.Uploaded),
		attribute.Int("failed", summary.Failed),
	)

	s.setState(StateDone)
	return summary, nil
}

// prepareStudent fetches one child's window of activities and transforms
// them into upload jobs, counting duplicates and unsupported kinds.
// Fetch failures (including stale student ids) are isolated to the
// student; the rest of the batch proceeds.
func (s *Service) prepareStudent(ctx context.Context, student brightwheel.Student, babyID string, summary *Summary) []uploadJob {
	name := student.FirstName + " " + student.LastName
	slog.InfoContext(ctx, "syncing child", "student", name)

	activities, err := retryRateLimited(ctx, s.opts, func() ([]brightwheel.Activity, error) {
		return s.src.ListActivities(ctx, student.ID, s.opts.Since, s.opts.Until)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch activities", "student", name, "err", err)
		summary.Failed++
		summary.Errors = append(summary.Errors, ItemError{
			StudentID: student.ID,
			Err:       fmt.Errorf("fetch activities: %w", err),
		})
		return nil
	}

	summary.Total += len(activities)
	slog.InfoContext(ctx, "found activities", "student", name, "count", len(activities))

	existing := s.fetchExisting(ctx, babyID)

	var jobs []uploadJob
	for _, act := range activities {
		rec, err := TransformActivity(act)
		if err != nil {
			var unsupported *ErrUnsupported
			if errors.As(err, &unsupported) {
				slog.WarnContext(ctx, "skipping unsupported activity", "kind", act.Kind, "id", act.ID)
				summary.Unsupported++
				continue
			}
			summary.Failed++
			summary.Errors = append(summary.Errors, ItemError{
				StudentID:  student.ID,
				ActivityID: act.ID,
				Kind:       act.Kind,
				Err:        err,
			})
			continue
		}

		if _, dup := existing[duplicateKey(rec.Type, rec.Time)]; dup {
			slog.DebugContext(ctx, "skipping duplicate activity", "kind", act.Kind, "id", act.ID)
			summary.Duplicates++
			continue
		}

		jobs = append(jobs, uploadJob{
			studentID:  student.ID,
			babyID:     babyID,
			activityID: act.ID,
			kind:       act.Kind,
			rec:        rec,
		})
	}
	return jobs
}

// fetchExisting prefetches the destination's records in the window so
// repeated incremental syncs skip what is already there. Best-effort: a
// failure just disables the duplicate check for this child.
func (s *Service) fetchExisting(ctx context.Context, babyID string) map[string]struct{} {
	if s.dst == nil || babyID == "" {
		return nil
	}
	records, err := s.dst.ListActivities(ctx, babyID, s.opts.Since, s.opts.Until)
	if err != nil {
		slog.WarnContext(ctx, "duplicate check unavailable", "baby_id", babyID, "err", err)
		return nil
	}
	existing := make(map[string]struct{}, len(records))
	for _, rec := range records {
		existing[duplicateKey(rec.Type, rec.Time)] = struct{}{}
	}
	return existing
}

// two records are considered equivalent when type and minute-truncated
// timestamp agree
func duplicateKey(t nara.RecordType, at time.Time) string {
	return string(t) + "|" + at.UTC().Truncate(time.Minute).Format(time.RFC3339)
}

func (s *Service) uploadAll(ctx context.Context, jobs []uploadJob, summary *Summary) {
	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job uploadJob) {
			defer wg.Done()
			defer func() { <-sem }()

			if s.opts.DryRun || s.dst == nil {
				slog.InfoContext(
					ctx, "dry run: would create activity",
					"type", job.rec.Type, "source_id", job.activityID,
				)
				mu.Lock()
				summary.Uploaded++
				mu.Unlock()
				return
			}

			_, err := retryRateLimited(ctx, s.opts, func() (string, error) {
				return s.dst.CreateActivity(ctx, job.babyID, job.rec)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, ItemError{
					StudentID:  job.studentID,
					ActivityID: job.activityID,
					Kind:       job.kind,
					Err:        err,
				})
				return
			}
			summary.Uploaded++
		}(job)
	}

	wg.Wait()
}

// retryRateLimited retries the call with exponential backoff and jitter
// while it keeps returning rate-limit errors, up to MaxAttempts tries.
// Every other error is permanent.
func retryRateLimited[T any](ctx context.Context, opts Options, call func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.RetryDelay

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(opts.MaxAttempts-1)),
		ctx,
	)

	return backoff.RetryWithData(func() (T, error) {
		out, err := call()
		if err != nil {
			var rateLimit *apierr.RateLimitError
			if errors.As(err, &rateLimit) {
				slog.WarnContext(ctx, "rate limited, backing off", "op", rateLimit.Op)
				return out, err
			}
			return out, backoff.Permanent(err)
		}
		return out, nil
	}, policy)
}
