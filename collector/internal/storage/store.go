// Package storage persists accepted batches: as objects under their
// partition key, and optionally as searchable documents.
package storage

import (
	"context"
	"fmt"
)

// ObjectStore writes one object per batch. Writing an existing key
// replaces it.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
	// Backend names the implementation for logs and metrics.
	Backend() string
}

// PutError wraps a backend failure with the key being written.
type PutError struct {
	Backend string
	Key     string
	Err     error
}

func (e *PutError) Error() string {
	return fmt.Sprintf("%s: put %s: %v", e.Backend, e.Key, e.Err)
}

func (e *PutError) Unwrap() error {
	return e.Err
}
