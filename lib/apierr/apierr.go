// Package apierr classifies HTTP failures from either platform into the
// handful of cases the transfer pipeline cares about: authentication
// failures abort the run, rate limits are retried, stale ids and
// everything else fail the single item.
package apierr

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d)", e.Op, e.Status)
}

type RateLimitError struct {
	Op string
	// zero when the server didn't send Retry-After
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Op)
}

type NotFoundError struct {
	Op string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Op)
}

type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error (status %d): %s", e.Op, e.Status, e.Body)
}

// FromResponse maps an http status to the error taxonomy. Returns nil
// for anything below 400.
func FromResponse(op string, res *resty.Response) error {
	status := res.StatusCode()
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Op: op, Status: status}
	case status == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(res.Header().Get("Retry-After")); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &RateLimitError{Op: op, RetryAfter: retryAfter}
	case status == http.StatusNotFound:
		return &NotFoundError{Op: op}
	default:
		return &RemoteError{Op: op, Status: status, Body: res.String()}
	}
}
