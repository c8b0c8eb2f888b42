package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LogPath is the log endpoint path on the backend.
const LogPath = "/log"

const (
	defaultHTTPTimeout = 10 * time.Second

	// maxErrorBody caps how much of a failed response is read for the error.
	maxErrorBody = 512
)

// HTTPClient talks to a backend serving the log API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

// NewHTTPClient returns a client for the backend at baseURL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Write POSTs rec to the backend. Any non-2xx status is a failure; the
// body is not interpreted.
func (h *HTTPClient) Write(ctx context.Context, rec Record) error {
	body, err := json.Marshal(struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
		User    string `json:"user"`
	}{rec.Topic, rec.Message, rec.User})
	if err != nil {
		return fmt.Errorf("%w: encoding record: %w", ErrWriteFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+LogPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrWriteFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrWriteFailed, statusError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
	return nil
}

// List fetches every record from the backend, newest first.
func (h *HTTPClient) List(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+LogPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching logs: %s", statusError(resp))
	}

	records := []Record{}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding logs: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func statusError(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Best effort detail
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return resp.Status
	}
	return resp.Status + ": " + msg
}
