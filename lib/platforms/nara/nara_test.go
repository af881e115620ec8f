package nara_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cribsync/lib/apierr"
	"cribsync/lib/platforms/nara"
	"cribsync/lib/testutil"

	"github.com/stretchr/testify/require"
)

func loginHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Email != "parent@example.com" || body.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "token-abc",
			"refresh_token": "refresh-xyz",
			"expires_in":    3600,
		})
	}
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
}

func TestLogin(t *testing.T) {
	defer testutil.Setup(t, "nara")()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := nara.NewClient(server.URL)
	session, err := client.Login(context.Background(), "parent@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "token-abc", session.AccessToken)
	require.Equal(t, "refresh-xyz", session.RefreshToken)
	require.True(t, session.ExpiresAt.After(time.Now()))
}

func TestLoginRejected(t *testing.T) {
	defer testutil.Setup(t, "nara")()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := nara.NewClient(server.URL)
	_, err := client.Login(context.Background(), "parent@example.com", "wrong")

	var authErr *apierr.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestListBabies(t *testing.T) {
	defer testutil.Setup(t, "nara")()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t))
	mux.HandleFunc("/babies", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_, _ = w.Write([]byte(`{"babies": [{"id": "b1", "name": "Ava Smith", "birth_date": "2022-01-01"}]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := nara.NewClient(server.URL)
	_, err := client.Login(context.Background(), "parent@example.com", "hunter2")
	require.NoError(t, err)

	babies, err := client.ListBabies(context.Background())
	require.NoError(t, err)
	require.Len(t, babies, 1)
	require.Equal(t, "Ava Smith", babies[0].Name)
	require.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), babies[0].BirthDate.Time)
}

func TestListActivitiesPagination(t *testing.T) {
	defer testutil.Setup(t, "nara")()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t))
	mux.HandleFunc("/babies/b1/activities", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{
				"activities": [{"id": "r1", "activity_type": "diaper", "timestamp": "2024-03-14T09:30:00Z"}],
				"has_more": true
			}`))
		case "100":
			_, _ = w.Write([]byte(`{
				"activities": [{"id": "r2", "activity_type": "feeding", "timestamp": "2024-03-14T12:00:00Z"}],
				"has_more": false
			}`))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := nara.NewClient(server.URL)
	_, err := client.Login(context.Background(), "parent@example.com", "hunter2")
	require.NoError(t, err)

	records, err := client.ListActivities(context.Background(), "b1", time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, nara.RecordDiaper, records[0].Type)
	require.Equal(t, nara.RecordFeeding, records[1].Type)
}

func TestCreateActivity(t *testing.T) {
	defer testutil.Setup(t, "nara")()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t))
	mux.HandleFunc("/babies/b1/activities", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		require.NotEmpty(t, r.Header.Get("X-Client-Request-Id"))

		var rec nara.Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		require.Equal(t, "b1", rec.BabyID)
		require.Equal(t, nara.RecordDiaper, rec.Type)
		require.Equal(t, nara.DiaperWet, rec.Status)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "created-1"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := nara.NewClient(server.URL)
	_, err := client.Login(context.Background(), "parent@example.com", "hunter2")
	require.NoError(t, err)

	id, err := client.CreateActivity(context.Background(), "b1", nara.Record{
		Type:   nara.RecordDiaper,
		Time:   time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		Status: nara.DiaperWet,
	})
	require.NoError(t, err)
	require.Equal(t, "created-1", id)
}

func TestCreateActivityRateLimited(t *testing.T) {
	defer testutil.Setup(t, "nara")()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t))
	mux.HandleFunc("/babies/b1/activities", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := nara.NewClient(server.URL)
	_, err := client.Login(context.Background(), "parent@example.com", "hunter2")
	require.NoError(t, err)

	_, err = client.CreateActivity(context.Background(), "b1", nara.Record{Type: nara.RecordDiaper})

	var rateLimit *apierr.RateLimitError
	require.ErrorAs(t, err, &rateLimit)
	require.Equal(t, 5*time.Second, rateLimit.RetryAfter)
}
