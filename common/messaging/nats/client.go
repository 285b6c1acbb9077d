// Package nats implements the messaging interfaces on NATS and JetStream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/logship/common/logging"
	"github.com/telhawk-systems/logship/common/messaging"
)

// Client publishes over a core NATS connection.
type Client struct {
	conn *nats.Conn
}

// Config is the connection setup. Use either Username/Password or Token.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int // -1 reconnects forever
	ReconnectWait time.Duration
	Timeout       time.Duration
	Username      string
	Password      string
	Token         string
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "logship-collector",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return errors.New("nats url is required")
	}
	if c.Token != "" && c.Username != "" {
		return errors.New("nats token and username are mutually exclusive")
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.New("nats username and password must be set together")
	}
	return nil
}

// options translates c into connect options. Connection state changes
// are logged through logger.
func (c Config) options(logger *logging.Logger) []nats.Option {
	log := logger.With(slog.String("nats_client", c.Name))

	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS connection lost", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("NATS connection restored", slog.String("url", conn.ConnectedUrlRedacted()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Debug("NATS connection closed")
		}),
	}

	switch {
	case c.Token != "":
		opts = append(opts, nats.Token(c.Token))
	case c.Username != "":
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return opts
}

// NewClient connects to cfg.URL.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	conn, err := nats.Connect(cfg.URL, cfg.options(logging.Default())...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	return c.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

// PublishJSON marshals v and publishes it to subject.
func (c *Client) PublishJSON(ctx context.Context, subject string, v any, opts ...messaging.PublishOption) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	o := messaging.ApplyPublishOptions(opts...)
	return c.PublishMsg(ctx, &messaging.Message{
		Subject:  subject,
		Data:     data,
		Metadata: o.Headers,
	})
}

// PublishMsg is fire and forget; ctx only guards against publishing after
// the caller gave up.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.PublishMsg(toNatsMsg(msg, ""))
}

func (c *Client) FlushContext(ctx context.Context) error {
	return c.conn.FlushWithContext(ctx)
}

func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Drain flushes pending messages, then closes.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) Close() error {
	c.conn.Close()
	return nil
}

// toNatsMsg copies metadata into headers. A non-empty msgID sets the
// JetStream dedup header.
func toNatsMsg(msg *messaging.Message, msgID string) *nats.Msg {
	out := nats.NewMsg(msg.Subject)
	out.Data = msg.Data
	if len(msg.Metadata) == 0 && msgID == "" {
		out.Header = nil
		return out
	}
	for k, v := range msg.Metadata {
		out.Header.Set(k, v)
	}
	if msgID != "" {
		out.Header.Set(nats.MsgIdHdr, msgID)
	}
	return out
}
