package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cribsync/lib/apierr"
	"cribsync/lib/platforms/brightwheel"
	"cribsync/lib/platforms/nara"
	"cribsync/lib/testutil"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	students     []brightwheel.Student
	activities   map[string][]brightwheel.Activity
	studentsErr  error
	activityErrs map[string]error
}

func (f *fakeSource) ListStudents(ctx context.Context) ([]brightwheel.Student, error) {
	return f.students, f.studentsErr
}

func (f *fakeSource) ListActivities(ctx context.Context, studentID string, since, until time.Time) ([]brightwheel.Activity, error) {
	if err := f.activityErrs[studentID]; err != nil {
		return nil, err
	}
	return f.activities[studentID], nil
}

type fakeDestination struct {
	mu       sync.Mutex
	babies   []nara.Baby
	existing map[string][]nara.Record
	created  []nara.Record

	// consumed one per CreateActivity call before any call succeeds
	createErrs  []error
	createCalls int
}

func (f *fakeDestination) ListBabies(ctx context.Context) ([]nara.Baby, error) {
	return f.babies, nil
}

func (f *fakeDestination) ListActivities(ctx context.Context, babyID string, since, until time.Time) ([]nara.Record, error) {
	return f.existing[babyID], nil
}

func (f *fakeDestination) CreateActivity(ctx context.Context, babyID string, rec nara.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return "", err
	}
	rec.BabyID = babyID
	f.created = append(f.created, rec)
	return "rec-1", nil
}

func diaperActivity(id, studentID string, at time.Time) brightwheel.Activity {
	return brightwheel.Activity{
		ID:        id,
		Kind:      brightwheel.KindDiaper,
		StudentID: studentID,
		Time:      at,
		Diaper:    &brightwheel.Diaper{Type: brightwheel.DiaperWet},
	}
}

func fastOptions() Options {
	return Options{
		Workers:     2,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}
}

func TestRunSingleDiaper(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {diaperActivity("a1", "s1", at)},
		},
	}
	dst := &fakeDestination{babies: []nara.Baby{baby("b1", "Ava Smith", "2022-01-01")}}

	service := New(src, dst, fastOptions())
	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StateDone, service.State())
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Uploaded)
	require.Zero(t, summary.Failed)
	require.Empty(t, summary.Errors)
	require.Empty(t, summary.Unmatched)

	require.Len(t, dst.created, 1)
	require.Equal(t, "b1", dst.created[0].BabyID)
	require.Equal(t, nara.RecordDiaper, dst.created[0].Type)
	require.Equal(t, at, dst.created[0].Time)
}

func TestRunDryRunNeverWrites(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {diaperActivity("a1", "s1", at), diaperActivity("a2", "s1", at.Add(time.Hour))},
		},
	}
	dst := &fakeDestination{babies: []nara.Baby{baby("b1", "Ava Smith", "2022-01-01")}}

	opts := fastOptions()
	opts.DryRun = true
	summary, err := New(src, dst, opts).Run(context.Background())
	require.NoError(t, err)

	require.True(t, summary.DryRun)
	require.Equal(t, 2, summary.Uploaded)
	require.Empty(t, dst.created)
	require.Zero(t, dst.createCalls)
}

func TestRunReadOnlyWithoutDestination(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {diaperActivity("a1", "s1", at)},
		},
	}

	summary, err := New(src, nil, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	require.True(t, summary.ReadOnly)
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Uploaded)
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	src := &fakeSource{}
	opts := fastOptions()
	opts.Login = func(ctx context.Context) error {
		return &apierr.AuthError{Op: "login", Status: 401}
	}

	service := New(src, &fakeDestination{}, opts)
	_, err := service.Run(context.Background())

	var authErr *apierr.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, StateFailed, service.State())
}

func TestRunSkipsDuplicates(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {
				diaperActivity("a1", "s1", at),
				diaperActivity("a2", "s1", at.Add(time.Hour)),
			},
		},
	}
	dst := &fakeDestination{
		babies: []nara.Baby{baby("b1", "Ava Smith", "2022-01-01")},
		existing: map[string][]nara.Record{
			// same type and minute as a1, different seconds
			"b1": {{Type: nara.RecordDiaper, Time: at.Add(20 * time.Second)}},
		},
	}

	summary, err := New(src, dst, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Duplicates)
	require.Equal(t, 1, summary.Uploaded)
	require.Len(t, dst.created, 1)
	require.Equal(t, at.Add(time.Hour), dst.created[0].Time)
}

func TestRunCountsUnsupportedKinds(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {
				diaperActivity("a1", "s1", at),
				{ID: "a2", Kind: brightwheel.KindMood, StudentID: "s1", Time: at},
			},
		},
	}
	dst := &fakeDestination{babies: []nara.Baby{baby("b1", "Ava Smith", "2022-01-01")}}

	summary, err := New(src, dst, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Unsupported)
	require.Equal(t, 1, summary.Uploaded)
	require.Zero(t, summary.Failed)
}

func TestRunRetriesRateLimits(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {diaperActivity("a1", "s1", at)},
		},
	}
	dst := &fakeDestination{
		babies: []nara.Baby{baby("b1", "Ava Smith", "2022-01-01")},
		createErrs: []error{
			&apierr.RateLimitError{Op: "create activity"},
			&apierr.RateLimitError{Op: "create activity"},
		},
	}

	summary, err := New(src, dst, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Uploaded)
	require.Zero(t, summary.Failed)
	require.Equal(t, 3, dst.createCalls)
}

func TestRunRateLimitExhaustionFailsItem(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {diaperActivity("a1", "s1", at)},
		},
	}
	dst := &fakeDestination{
		babies: []nara.Baby{baby("b1", "Ava Smith", "2022-01-01")},
		createErrs: []error{
			&apierr.RateLimitError{Op: "create activity"},
			&apierr.RateLimitError{Op: "create activity"},
		},
	}

	opts := fastOptions()
	opts.MaxAttempts = 2
	summary, err := New(src, dst, opts).Run(context.Background())
	require.NoError(t, err)

	require.Zero(t, summary.Uploaded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 2, dst.createCalls)
	require.Len(t, summary.Errors, 1)

	var rateLimit *apierr.RateLimitError
	require.ErrorAs(t, summary.Errors[0].Err, &rateLimit)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{
			student("s1", "Ava", "Smith", "2022-01-01"),
			student("s2", "Leo", "Smith", "2023-05-20"),
		},
		activities: map[string][]brightwheel.Activity{
			"s2": {diaperActivity("a1", "s2", at)},
		},
		activityErrs: map[string]error{
			"s1": &apierr.NotFoundError{Op: "list activities"},
		},
	}
	dst := &fakeDestination{
		babies: []nara.Baby{
			baby("b1", "Ava Smith", "2022-01-01"),
			baby("b2", "Leo Smith", "2023-05-20"),
		},
	}

	summary, err := New(src, dst, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Uploaded)
	require.Len(t, dst.created, 1)
	require.Equal(t, "b2", dst.created[0].BabyID)
}

func TestRunUnmatchedChildrenAreSkipped(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{
		students: []brightwheel.Student{student("s1", "Ava", "Smith", "2022-01-01")},
		activities: map[string][]brightwheel.Activity{
			"s1": {diaperActivity("a1", "s1", at)},
		},
	}
	dst := &fakeDestination{babies: []nara.Baby{baby("b1", "Noah Smith", "2023-02-02")}}

	summary, err := New(src, dst, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Unmatched, 1)
	require.Zero(t, summary.Total)
	require.Empty(t, dst.created)
}

func TestRunNoStudents(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	service := New(&fakeSource{}, &fakeDestination{}, fastOptions())
	summary, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, service.State())
	require.Zero(t, summary.Total)
}

func TestRunFetchStudentsFailureIsFatal(t *testing.T) {
	defer testutil.Setup(t, "transfer")()

	src := &fakeSource{studentsErr: errors.New("connection reset")}
	service := New(src, &fakeDestination{}, fastOptions())
	_, err := service.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StateFailed, service.State())
}
