package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Signer computes the keyed digest kept with each ledger entry, so an
// object later read back from storage can be checked against what the
// collector wrote.
type Signer struct {
	key []byte
}

func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign returns hex(HMAC-SHA256(partitionKey | sentAt | body)).
func (s *Signer) Sign(partitionKey string, sentAt time.Time, body []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(partitionKey))
	h.Write([]byte{0})
	h.Write([]byte(sentAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Signer) Verify(partitionKey string, sentAt time.Time, body []byte, digest string) bool {
	return hmac.Equal([]byte(s.Sign(partitionKey, sentAt, body)), []byte(digest))
}
