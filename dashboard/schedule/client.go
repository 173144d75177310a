package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx reply from the schedule API, decoded from the
// {"error": "..."} envelope when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("schedule api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("schedule api: status %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the schedule API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the schedule API.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// TokenSource supplies the bearer token for each request. The dashboard
// session layer owns refresh; the client just asks.
type TokenSource func() string

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return func() string { return tok }
}

// Client talks to the scheduling REST API on behalf of one tenant operator.
type Client struct {
	baseURL string
	token   TokenSource
	httpc   *http.Client
}

type ClientConfig struct {
	BaseURL string
	Token   TokenSource
	Timeout time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("token source is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// ListAppointments fetches appointments overlapping [startDate, endDate],
// ordered by start time.
func (c *Client) ListAppointments(ctx context.Context, startDate, endDate string) ([]Appointment, error) {
	var out []Appointment
	err := c.do(ctx, http.MethodGet, "/appointments", rangeQuery(startDate, endDate), nil, &out)
	return out, err
}

// ListTimeBlocks fetches time blocks overlapping [startDate, endDate].
func (c *Client) ListTimeBlocks(ctx context.Context, startDate, endDate string) ([]TimeBlock, error) {
	var out []TimeBlock
	err := c.do(ctx, http.MethodGet, "/time-blocks", rangeQuery(startDate, endDate), nil, &out)
	return out, err
}

// ListBlockedDays fetches blocked days within [startDate, endDate].
func (c *Client) ListBlockedDays(ctx context.Context, startDate, endDate string) ([]BlockedDay, error) {
	var out []BlockedDay
	err := c.do(ctx, http.MethodGet, "/blocked-days", rangeQuery(startDate, endDate), nil, &out)
	return out, err
}

// ToggleBlockedDay flips the blocked state of a calendar day.
func (c *Client) ToggleBlockedDay(ctx context.Context, date, reason string) (ToggleResult, error) {
	body := map[string]string{"date": date}
	if reason != "" {
		body["reason"] = reason
	}
	var out ToggleResult
	err := c.do(ctx, http.MethodPost, "/blocked-days/toggle", nil, body, &out)
	return out, err
}

// CreateAppointment creates a new appointment and returns the server record
// with its assigned id.
func (c *Client) CreateAppointment(ctx context.Context, in AppointmentInput) (Appointment, error) {
	var out Appointment
	err := c.do(ctx, http.MethodPost, "/appointments", nil, in, &out)
	return out, err
}

// UpdateAppointment replaces an existing appointment's fields.
func (c *Client) UpdateAppointment(ctx context.Context, id string, in AppointmentInput) (Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return Appointment{}, errors.New("appointment id is required")
	}
	var out Appointment
	err := c.do(ctx, http.MethodPut, "/appointments/"+url.PathEscape(id), nil, in, &out)
	return out, err
}

func rangeQuery(startDate, endDate string) url.Values {
	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	} else if s := strings.TrimSpace(string(raw)); s != "" {
		msg = s
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
