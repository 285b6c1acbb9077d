// Package shipper posts log batches to the collector.
package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/logship/common/middleware"
)

// TimestampLayout is how the send time is written to the envelope.
const TimestampLayout = "2006-01-02T15:04:05"

// Envelope is the request body accepted by the collector.
type Envelope struct {
	DeviceID  string   `json:"device_id"`
	Timestamp string   `json:"timestamp"`
	Logs      []string `json:"logs"`
}

// Response is the collector's JSON answer.
type Response struct {
	Text         string `json:"text"`
	Code         int    `json:"code"`
	PartitionKey string `json:"partition_key,omitempty"`
	Records      int    `json:"records"`
	Unusual      int    `json:"unusual"`
	InvalidLine  *int   `json:"invalid_line,omitempty"`
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	StatusCode int
	Response   Response
	Body       string
}

func (e *StatusError) Error() string {
	if e.Response.Text != "" {
		return fmt.Sprintf("collector returned %d: %s", e.StatusCode, e.Response.Text)
	}
	return fmt.Sprintf("collector returned %d", e.StatusCode)
}

// Retryable reports whether resending the same batch may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TokenSource mints a bearer token for a device.
type TokenSource interface {
	Sign(deviceID string) (string, error)
}

type Client struct {
	url    string
	client *http.Client
	tokens TokenSource
}

// New returns a Client posting to url. tokens may be nil when the
// collector does not require authentication.
func New(url string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

// Ship posts one batch. The send time is written with its wall clock and
// no zone; the collector derives the partition key from it.
func (c *Client) Ship(ctx context.Context, deviceID string, sentAt time.Time, lines []string) (*Response, error) {
	if lines == nil {
		lines = []string{}
	}
	body, err := json.Marshal(Envelope{
		DeviceID:  deviceID,
		Timestamp: sentAt.Format(TimestampLayout),
		Logs:      lines,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, uuid.NewString())

	if c.tokens != nil {
		token, err := c.tokens.Sign(deviceID)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Response: out, Body: string(raw)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &out, nil
}

// IsRetryable reports whether err is worth retrying on the next run.
// Transport failures are; rejections of the batch itself are not.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return err != nil
}
