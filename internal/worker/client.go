// Package worker implements the bot runtime: a long-lived client that
// registers with the coordinator, heartbeats, and polls for jobs to
// execute.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Job is the coordinator's wire representation of claimed work.
type Job struct {
	ID        string `json:"id"`
	A         int    `json:"a"`
	B         int    `json:"b"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
}

// APIError is a non-2xx coordinator response. Code is the stable error
// code from the response envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coordinator returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsConflict reports whether the coordinator rejected the call on a
// precondition: somebody else owns the job, or the transition already
// happened. Conflicts are not retryable with the same arguments.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// Client is a thin HTTP client for the coordinator API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a coordinator client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Register creates or revives the bot identity on the coordinator.
// operation pins the bot when non-empty.
func (c *Client) Register(ctx context.Context, botID, operation string) error {
	body := map[string]any{"id": botID}
	if operation != "" {
		body["assigned_operation"] = operation
	}
	return c.post(ctx, "/bots/register", body, nil)
}

// Heartbeat refreshes the bot's liveness timestamp.
func (c *Client) Heartbeat(ctx context.Context, botID string) error {
	return c.post(ctx, "/bots/heartbeat", map[string]any{"id": botID}, nil)
}

// Claim asks for the oldest matching pending job. Returns nil when the
// coordinator has no work.
func (c *Client) Claim(ctx context.Context, botID string) (*Job, error) {
	var j *Job
	if err := c.post(ctx, "/jobs/claim", map[string]any{"bot_id": botID}, &j); err != nil {
		return nil, err
	}
	return j, nil
}

// Start reports that the bot began processing the job.
func (c *Client) Start(ctx context.Context, jobID, botID string) error {
	return c.post(ctx, "/jobs/"+jobID+"/start", map[string]any{"bot_id": botID}, nil)
}

// Complete reports a successful result.
func (c *Client) Complete(ctx context.Context, jobID, botID string, result, durationMS int) error {
	return c.post(ctx, "/jobs/"+jobID+"/complete", map[string]any{
		"bot_id":      botID,
		"result":      result,
		"duration_ms": durationMS,
	}, nil)
}

// Fail reports a failed execution with the error text.
func (c *Client) Fail(ctx context.Context, jobID, botID, errText string, durationMS int) error {
	return c.post(ctx, "/jobs/"+jobID+"/fail", map[string]any{
		"bot_id":      botID,
		"error":       errText,
		"duration_ms": durationMS,
	}, nil)
}

// post sends a JSON request and decodes a 2xx response into out when
// out is non-nil. Non-2xx responses decode into an APIError.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coordinator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
