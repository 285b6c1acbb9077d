package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/logship/common/messaging"
)

// JetStreamClient adds durable publishing and object storage to Client.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// DLQStream retains batches the collector could not store.
var DLQStream = StreamConfig{
	Name:      "LOGSHIP_DLQ",
	Subjects:  []string{messaging.SubjectDLQBatches},
	MaxAge:    7 * 24 * time.Hour,
	MaxBytes:  1024 * 1024 * 1024, // 1GB
	MaxMsgs:   1000000,
	Retention: jetstream.LimitsPolicy,
	Storage:   jetstream.FileStorage,
}

func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// PublishDurable publishes msg and waits for the stream acknowledgement.
func (c *JetStreamClient) PublishDurable(ctx context.Context, msg *messaging.Message, opts ...messaging.PublishOption) (uint64, error) {
	o := messaging.ApplyPublishOptions(opts...)
	if len(o.Headers) > 0 {
		merged := make(map[string]string, len(msg.Metadata)+len(o.Headers))
		for k, v := range msg.Metadata {
			merged[k] = v
		}
		for k, v := range o.Headers {
			merged[k] = v
		}
		msg = &messaging.Message{Subject: msg.Subject, Data: msg.Data, Metadata: merged, Timestamp: msg.Timestamp}
	}

	ack, err := c.js.PublishMsg(ctx, toNatsMsg(msg, o.MsgID))
	if err != nil {
		return 0, fmt.Errorf("jetstream publish %s: %w", msg.Subject, err)
	}
	return ack.Sequence, nil
}

// ObjectStore opens bucket, creating it when missing.
func (c *JetStreamClient) ObjectStore(ctx context.Context, bucket, description string) (jetstream.ObjectStore, error) {
	store, err := c.js.ObjectStore(ctx, bucket)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("open object store %s: %w", bucket, err)
	}

	store, err = c.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: description,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store %s: %w", bucket, err)
	}
	return store, nil
}

// JetStream exposes the underlying context.
func (c *JetStreamClient) JetStream() jetstream.JetStream {
	return c.js
}
