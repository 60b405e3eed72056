// Package client is the HTTP client for the ledgerwire service.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/ledgerwire/service/schema"
	"github.com/brojonat/ledgerwire/service/tracker"
	"github.com/brojonat/ledgerwire/service/wallet"
)

// Decoded is the server's answer to a decode request.
type Decoded struct {
	Name     string          `json:"name"`
	Variant  string          `json:"variant"`
	Tag      *uint64         `json:"tag"`
	Envelope json.RawMessage `json:"envelope"`
}

// Published is the server's answer to a publish request.
type Published struct {
	Subject   string              `json:"subject"`
	EventType string              `json:"event_type"`
	Progress  *tracker.Transition `json:"progress,omitempty"`
}

// StreamMessage is one Server-Sent Events message.
type StreamMessage struct {
	Event string
	Data  string
}

// APIError is a non-success response. Kind, Field and Path are set for codec rejections.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
	Field      string
	Path       string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("request failed: %s", e.Message)
	}
	return fmt.Sprintf("request failed (%s): %s", e.Kind, e.Message)
}

// Client is the HTTP client for the ledgerwire service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Decode asks the server to decode body as the named schema.
func (c *Client) Decode(ctx context.Context, schemaName string, body []byte, strict bool) (*Decoded, error) {
	u := fmt.Sprintf("%s/api/v1/decode/%s", c.baseURL, url.PathEscape(schemaName))
	if strict {
		u += "?strict=true"
	}

	var out Decoded
	if err := c.do(ctx, http.MethodPost, u, body, http.StatusOK, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("decoded", "schema", schemaName, "variant", out.Variant)
	return &out, nil
}

// PublishEvent sends an event for the server to publish.
func (c *Client) PublishEvent(ctx context.Context, e wallet.Event) (*Published, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	var out Published
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/events", body, http.StatusAccepted, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("event published", "subject", out.Subject, "event_type", out.EventType)
	return &out, nil
}

// Families lists every schema the server can decode.
func (c *Client) Families(ctx context.Context) ([]schema.Info, error) {
	var out struct {
		Schemas []schema.Info `json:"schemas"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/families", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Schemas, nil
}

// Progress returns the last tracked progress stage of an account.
func (c *Client) Progress(ctx context.Context, account uint32) (*tracker.State, error) {
	u := fmt.Sprintf("%s/api/v1/progress/%d", c.baseURL, account)
	var out struct {
		State tracker.State `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out.State, nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

// StreamEvents connects to the SSE endpoint and calls fn for every message until
// ctx is done, the stream ends or fn returns an error. An empty account streams all accounts.
func (c *Client) StreamEvents(ctx context.Context, account string, fn func(StreamMessage) error) error {
	u := c.baseURL + "/api/v1/stream/events"
	if account != "" {
		u += "/" + url.PathEscape(account)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The configured client may carry a timeout, which would cut the stream.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var current StreamMessage

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if current.Event != "" {
				if err := fn(current); err != nil {
					return err
				}
			}
			current = StreamMessage{}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			current.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
		Field string `json:"field"`
		Path  string `json:"path"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    "status " + strconv.Itoa(resp.StatusCode) + ": " + strings.TrimSpace(string(body)),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errResp.Error,
		Kind:       errResp.Kind,
		Field:      errResp.Field,
		Path:       errResp.Path,
	}
}
