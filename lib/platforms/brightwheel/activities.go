package brightwheel

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cribsync/lib/apierr"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func unmarshalBody(res *resty.Response, out any) error {
	err := json.Unmarshal(res.Body(), out)
	if err != nil {
		return fmt.Errorf("brightwheel: decode %s: %w", res.Request.URL, err)
	}
	return nil
}

// ListStudents returns every child visible to the logged-in guardian,
// with their guardians and room attached for reference.
func (c *Client) ListStudents(ctx context.Context) ([]Student, error) {
	ctx, span := tracer.Start(ctx, "ListStudents")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("include", "guardians,room").
		Get(apiPrefix + "/students")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch students")
		return nil, err
	}
	if err := apierr.FromResponse("brightwheel: list students", res); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var body struct {
		Students []Student `json:"students"`
	}
	if err := unmarshalBody(res, &body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(body.Students)))
	return body.Students, nil
}

// ListActivities fetches all activities for a student in [since, until],
// following pagination until the feed reports no more pages.
func (c *Client) ListActivities(ctx context.Context, studentID string, since, until time.Time) ([]Activity, error) {
	ctx, span := tracer.Start(ctx, "ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("student_id", studentID))

	var all []Activity
	for page := 1; ; page++ {
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"student_id": studentID,
				"start_date": since.Format("2006-01-02"),
				"end_date":   until.Format("2006-01-02"),
				"page":       strconv.Itoa(page),
				"limit":      strconv.Itoa(c.pageSize),
			}).
			Get(apiPrefix + "/activities")
		if err != nil {
			span.SetStatus(codes.Error, "failed to fetch activities")
			return nil, err
		}
		if err := apierr.FromResponse("brightwheel: list activities", res); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		var body struct {
			Activities []Activity `json:"activities"`
			HasMore    bool       `json:"has_more"`
		}
		if err := unmarshalBody(res, &body); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		all = append(all, body.Activities...)
		if !body.HasMore || len(body.Activities) == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("count", len(all)))
	return all, nil
}
