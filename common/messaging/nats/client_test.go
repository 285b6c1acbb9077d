package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/logship/common/logging"
	"github.com/telhawk-systems/logship/common/messaging"
)

func TestToNatsMsg(t *testing.T) {
	t.Run("no headers", func(t *testing.T) {
		m := toNatsMsg(&messaging.Message{Subject: "a.b.c", Data: []byte("x")}, "")
		assert.Equal(t, "a.b.c", m.Subject)
		assert.Equal(t, []byte("x"), m.Data)
		assert.Nil(t, m.Header)
	})

	t.Run("metadata and id", func(t *testing.T) {
		m := toNatsMsg(&messaging.Message{
			Subject:  messaging.SubjectDLQBatches,
			Metadata: map[string]string{messaging.HeaderDeviceID: "dev"},
		}, "batch-1")
		assert.Equal(t, "dev", m.Header.Get(messaging.HeaderDeviceID))
		assert.Equal(t, "batch-1", m.Header.Get(nats.MsgIdHdr))
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Positive(t, cfg.Timeout)
}

func TestDLQStream(t *testing.T) {
	assert.Equal(t, []string{messaging.SubjectDLQBatches}, DLQStream.Subjects)
	assert.NotEmpty(t, DLQStream.Name)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"user and password", func(c *Config) { c.Username, c.Password = "u", "p" }, ""},
		{"token", func(c *Config) { c.Token = "t" }, ""},
		{"missing url", func(c *Config) { c.URL = "" }, "url is required"},
		{"token and user", func(c *Config) { c.Token, c.Username, c.Password = "t", "u", "p" }, "mutually exclusive"},
		{"user without password", func(c *Config) { c.Username = "u" }, "set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigOptions(t *testing.T) {
	base := len(DefaultConfig().options(logging.Discard()))

	withToken := DefaultConfig()
	withToken.Token = "t"
	assert.Len(t, withToken.options(logging.Discard()), base+1)
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Username = "only-user"
	_, err := NewClient(cfg)
	assert.ErrorContains(t, err, "set together")
}
