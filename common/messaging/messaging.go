// Package messaging provides the broker abstractions the collector publishes
// through. Implementations live in subpackages (see messaging/nats).
package messaging

import (
	"context"
	"time"
)

// Message is a message sent to a broker.
type Message struct {
	Subject string
	Data    []byte

	// Metadata is carried as message headers.
	Metadata map[string]string

	Timestamp time.Time
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message including its headers.
	PublishMsg(ctx context.Context, msg *Message) error

	Close() error
}

// Client is a Publisher with connection state.
type Client interface {
	Publisher

	// Drain flushes pending publishes and closes the connection.
	Drain() error

	IsConnected() bool
}

// PublishOption configures a single publish.
type PublishOption func(*PublishOptions)

// PublishOptions is the resolved form of a set of PublishOption values.
type PublishOptions struct {
	Headers map[string]string
	// MsgID enables broker-side de-duplication where supported.
	MsgID string
}

// WithHeader adds a header to the published message.
func WithHeader(key, value string) PublishOption {
	return func(o *PublishOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// WithMsgID sets the de-duplication id.
func WithMsgID(id string) PublishOption {
	return func(o *PublishOptions) {
		o.MsgID = id
	}
}

// ApplyPublishOptions folds opts into a PublishOptions value.
func ApplyPublishOptions(opts ...PublishOption) PublishOptions {
	var o PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
