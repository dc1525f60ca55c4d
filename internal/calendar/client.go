package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Calendar v3 REST root.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Backend is the calendar capability used by the reconciler and poller.
type Backend interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev Event) (*Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, ev Event) (*Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a thin HTTP client for the Calendar v3 REST API. It handles
// Bearer token authentication, JSON marshaling, and automatic retry with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a calendar client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL string, tokens TokenSource) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

func eventsPath(calendarID string) string {
	return "/calendars/" + url.PathEscape(calendarID) + "/events"
}

// ListEvents returns the single events starting in [timeMin, timeMax),
// ordered by start time. Every result page is fetched.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	var events []Event
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
		q.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("maxResults", "250")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page eventList
		if err := c.do(ctx, http.MethodGet, eventsPath(calendarID)+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		events = append(events, page.Items...)
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetEvent fetches a single event. Deleted events come back with status
// "cancelled" or as ErrNotFound.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	var out Event
	path := eventsPath(calendarID) + "/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertEvent creates ev and returns the stored event.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev Event) (*Event, error) {
	var out Event
	if err := c.do(ctx, http.MethodPost, eventsPath(calendarID), ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchEvent updates the fields set in ev.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, ev Event) (*Event, error) {
	var out Event
	path := eventsPath(calendarID) + "/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodPatch, path, ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	path := eventsPath(calendarID) + "/" + url.PathEscape(eventID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if token == "" {
		return ErrUnauthenticated
	}

	var data []byte
	if body != nil {
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &RemoteError{Method: method, Path: path, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &RemoteError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: readErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = &RemoteError{
				Method: method, Path: path,
				StatusCode: resp.StatusCode, Message: "rate limited",
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s %s rejected the token", ErrUnauthenticated, method, path)
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			msg := strings.TrimSpace(string(respBody))
			var gErr errorResponse
			if json.Unmarshal(respBody, &gErr) == nil && gErr.Error.Message != "" {
				msg = gErr.Error.Message
			}
			return &RemoteError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return &RemoteError{
				Method: method, Path: path, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("unmarshaling response: %w", err),
			}
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
