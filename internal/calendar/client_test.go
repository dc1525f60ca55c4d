package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/model"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("not connected")
	}
	return string(s), nil
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, staticToken("tok-123"))
}

func TestClient_InsertEvent(t *testing.T) {
	var got Event
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-1","summary":"sopralluogo"}`))
	})

	ev, err := c.InsertEvent(context.Background(), "primary", Event{Summary: "sopralluogo"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "sopralluogo", got.Summary)
}

func TestClient_GetEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/calendars/primary/events/evt-1":
			_, _ = w.Write([]byte(`{"id":"evt-1","status":"confirmed","start":{"dateTime":"2025-08-01T15:00:00Z"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ev, err := c.GetEvent(context.Background(), "primary", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", ev.Status)
	assert.Equal(t, "2025-08-01T15:00:00Z", ev.Start.DateTime)

	_, err = c.GetEvent(context.Background(), "primary", "evt-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ListEventsPages(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	calls := 0

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		assert.Equal(t, "2025-06-01T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2025-06-03T00:00:00Z", q.Get("timeMax"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))

		if q.Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"items":[{"id":"a"}],"nextPageToken":"p2"}`))
			return
		}
		assert.Equal(t, "p2", q.Get("pageToken"))
		_, _ = w.Write([]byte(`{"items":[{"id":"b"}]}`))
	})

	events, err := c.ListEvents(context.Background(), "primary", from, to)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, 2, calls)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnauthenticated)
		}},
		{"not found", http.StatusNotFound, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrNotFound)
		}},
		{"gone", http.StatusGone, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrNotFound)
		}},
		{"server error", http.StatusInternalServerError, `{"error":{"code":500,"message":"backend error"}}`, func(t *testing.T, err error) {
			var rErr *RemoteError
			require.ErrorAs(t, err, &rErr)
			assert.Equal(t, http.StatusInternalServerError, rErr.StatusCode)
			assert.Equal(t, "backend error", rErr.Message)
			assert.NotErrorIs(t, err, ErrNotFound)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			tt.check(t, c.DeleteEvent(context.Background(), "primary", "evt-1"))
		})
	}
}

func TestClient_RetriesOn429(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteEvent(context.Background(), "primary", "evt-1"))
	assert.Equal(t, 2, calls)
}

func TestClient_NoToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", staticToken(""))
	_, err := c.InsertEvent(context.Background(), "primary", Event{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	_, err := c.PatchEvent(context.Background(), "primary", "evt-1", Event{})
	assert.True(t, IsRemoteError(err))
}

func TestColorForPriority(t *testing.T) {
	assert.Equal(t, "2", ColorForPriority(model.PriorityLow))
	assert.Equal(t, "5", ColorForPriority(model.PriorityNormal))
	assert.Equal(t, "11", ColorForPriority(model.PriorityHigh))
	assert.Equal(t, "5", ColorForPriority(""))
}
