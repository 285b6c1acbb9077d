package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/logship/collector/internal/alert"
	"github.com/telhawk-systems/logship/common/batch"
	"github.com/telhawk-systems/logship/common/logging"
	"github.com/telhawk-systems/logship/common/messaging"
)

const userAgent = "Logship-Collector/1.0"

// Channel delivers an alert payload.
type Channel interface {
	Send(ctx context.Context, payload *alert.Payload) error
	Type() string
}

// Event is the structured form of an alert sent to generic webhooks and
// the message bus.
type Event struct {
	DeviceID     string               `json:"device_id"`
	SentAt       time.Time            `json:"sent_at"`
	UnusualCount int                  `json:"unusual_count"`
	Records      []batch.StoredRecord `json:"records"`
	Timestamp    string               `json:"timestamp"`
}

// NewEvent flattens payload into an Event.
func NewEvent(payload *alert.Payload) Event {
	ev := Event{
		DeviceID:     payload.DeviceID,
		SentAt:       payload.SentAt,
		UnusualCount: len(payload.Records),
		Records:      make([]batch.StoredRecord, 0, len(payload.Records)),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, rec := range payload.Records {
		ev.Records = append(ev.Records, batch.StoredRecord{
			Timestamp: rec.TimestampText,
			Hostname:  rec.Hostname,
			Component: rec.Component(),
			Process:   rec.Process,
			Message:   rec.Message,
		})
	}
	return ev
}

// SlackChannel posts the Block Kit payload to a Slack incoming webhook.
type SlackChannel struct {
	WebhookURL string
	Timeout    time.Duration
	client     *http.Client
}

func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		WebhookURL: webhookURL,
		Timeout:    timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *SlackChannel) Type() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, payload *alert.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return postJSON(ctx, s.client, s.WebhookURL, body, "slack webhook")
}

// WebhookChannel posts an Event to an arbitrary HTTP endpoint.
type WebhookChannel struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		URL:     url,
		Timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *WebhookChannel) Type() string {
	return "webhook"
}

func (w *WebhookChannel) Send(ctx context.Context, payload *alert.Payload) error {
	body, err := json.Marshal(NewEvent(payload))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return postJSON(ctx, w.client, w.URL, body, "webhook")
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, what string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", what, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", what, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", what, resp.StatusCode)
	}
	return nil
}

// NATSChannel publishes an Event on the device's alert subject.
type NATSChannel struct {
	publisher messaging.Publisher
}

func NewNATSChannel(publisher messaging.Publisher) *NATSChannel {
	return &NATSChannel{publisher: publisher}
}

func (n *NATSChannel) Type() string {
	return "nats"
}

func (n *NATSChannel) Send(ctx context.Context, payload *alert.Payload) error {
	data, err := json.Marshal(NewEvent(payload))
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	return n.publisher.PublishMsg(ctx, &messaging.Message{
		Subject:   messaging.AlertSubject(payload.DeviceID),
		Data:      data,
		Metadata:  map[string]string{messaging.HeaderDeviceID: payload.DeviceID},
		Timestamp: time.Now(),
	})
}

// LogChannel writes alerts to the structured log. Used when no other
// channel is configured.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Type() string {
	return "log"
}

func (l *LogChannel) Send(ctx context.Context, payload *alert.Payload) error {
	for _, rec := range payload.Records {
		l.logger.WarnContext(ctx, "Unusual log record",
			logging.DeviceID(payload.DeviceID),
			slog.String("severity", rec.Severity.String()),
			slog.String("facility", rec.Facility),
			slog.String("process", rec.Process),
			slog.String("message", rec.Message),
		)
	}
	return nil
}

// MultiChannel fans out to several channels. It fails only when every
// channel fails.
type MultiChannel struct {
	channels []Channel
}

func NewMultiChannel(channels ...Channel) *MultiChannel {
	return &MultiChannel{channels: channels}
}

func (m *MultiChannel) Type() string {
	return "multi"
}

// Len reports how many channels are configured.
func (m *MultiChannel) Len() int {
	return len(m.channels)
}

func (m *MultiChannel) Send(ctx context.Context, payload *alert.Payload) error {
	var lastErr error
	successCount := 0

	for _, ch := range m.channels {
		if err := ch.Send(ctx, payload); err != nil {
			lastErr = fmt.Errorf("%s channel failed: %w", ch.Type(), err)
			slog.WarnContext(ctx, "Notification channel failed",
				logging.Channel(ch.Type()),
				logging.Error(err),
			)
		} else {
			successCount++
		}
	}

	if successCount == 0 && len(m.channels) > 0 {
		return fmt.Errorf("all notification channels failed: %w", lastErr)
	}
	return nil
}
