package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	s := NewSigner("secret")
	sentAt := time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)
	body := []byte(`{"message":"x"}` + "\n")
	key := "logs/2024/03/05/dev_logs20240305_102030"

	digest := s.Sign(key, sentAt, body)
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, s.Sign(key, sentAt, body))
	assert.True(t, s.Verify(key, sentAt, body, digest))

	assert.False(t, s.Verify(key, sentAt, []byte("tampered"), digest))
	assert.False(t, s.Verify(key+"x", sentAt, body, digest))
	assert.False(t, s.Verify(key, sentAt.Add(time.Second), body, digest))
	assert.False(t, NewSigner("other").Verify(key, sentAt, body, digest))
}

func TestSigner_ZoneIndependent(t *testing.T) {
	s := NewSigner("secret")
	utc := time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)
	local := utc.In(time.FixedZone("CET", 3600))

	assert.Equal(t, s.Sign("k", utc, nil), s.Sign("k", local, nil))
}
