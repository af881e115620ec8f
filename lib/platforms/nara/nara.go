package nara

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cribsync/lib/apierr"
	"cribsync/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/nara")

type Client struct {
	http *resty.Client
}

func NewClient(baseUrl string) *Client {
	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetTimeout(time.Second * 30)
	client.SetHeader("content-type", "application/json")

	telemetry.InstrumentResty(client, "platforms/nara/http")

	return &Client{http: client}
}

func unmarshalBody(res *resty.Response, out any) error {
	err := json.Unmarshal(res.Body(), out)
	if err != nil {
		return fmt.Errorf("nara: decode %s: %w", res.Request.URL, err)
	}
	return nil
}

// Login exchanges credentials for a bearer token, which is installed on
// the client for all later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"email":    email,
			"password": password,
		}).
		Post("/auth/login")
	if err != nil {
		span.SetStatus(codes.Error, "login request failed")
		return Session{}, err
	}
	if err := apierr.FromResponse("nara: login", res); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Session{}, err
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := unmarshalBody(res, &body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Session{}, err
	}

	c.http.SetAuthToken(body.AccessToken)

	return Session{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) ListBabies(ctx context.Context) ([]Baby, error) {
	ctx, span := tracer.Start(ctx, "ListBabies")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get("/babies")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch babies")
		return nil, err
	}
	if err := apierr.FromResponse("nara: list babies", res); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var body struct {
		Babies []Baby `json:"babies"`
	}
	if err := unmarshalBody(res, &body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(body.Babies)))
	return body.Babies, nil
}

// ListActivities fetches the baby's existing records in [since, until],
// paginating by offset. Used for destination-side duplicate checks.
func (c *Client) ListActivities(ctx context.Context, babyID string, since, until time.Time) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "ListActivities")
	defer span.End()
	span.SetAttributes(attribute.String("baby_id", babyID))

	const pageLimit = 100

	var all []Record
	for offset := 0; ; offset += pageLimit {
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"start_date": since.Format(time.RFC3339),
				"end_date":   until.Format(time.RFC3339),
				"limit":      strconv.Itoa(pageLimit),
				"offset":     strconv.Itoa(offset),
			}).
			Get("/babies/" + babyID + "/activities")
		if err != nil {
			span.SetStatus(codes.Error, "failed to fetch activities")
			return nil, err
		}
		if err := apierr.FromResponse("nara: list activities", res); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		var body struct {
			Activities []Record `json:"activities"`
			HasMore    bool     `json:"has_more"`
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

// CreateActivity writes one record. A random client request id rides
// along so the server can drop replays of the same create, which keeps
// retried uploads best-effort idempotent.
func (c *Client) CreateActivity(ctx context.Context, babyID string, rec Record) (string, error) {
	ctx, span := tracer.Start(ctx, "CreateActivity")
	defer span.End()
	span.SetAttributes(
		attribute.String("baby_id", babyID),
		attribute.String("activity_type", string(rec.Type)),
	)

	requestID, err := random.String(16)
	if err != nil {
		return "", err
	}

	rec.BabyID = babyID
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Client-Request-Id", requestID).
		SetBody(rec).
		Post("/babies/" + babyID + "/activities")
	if err != nil {
		span.SetStatus(codes.Error, "create request failed")
		return "", err
	}
	if err := apierr.FromResponse("nara: create activity", res); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := unmarshalBody(res, &body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return body.ID, nil
}
