package storage

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// ObjectPutter is the subset of jetstream.ObjectStore used here.
type ObjectPutter interface {
	PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error)
}

// JetStreamStore writes objects into a NATS JetStream object store bucket.
type JetStreamStore struct {
	store ObjectPutter
}

func NewJetStreamStore(store ObjectPutter) *JetStreamStore {
	return &JetStreamStore{store: store}
}

func (j *JetStreamStore) Backend() string {
	return "nats"
}

func (j *JetStreamStore) Put(ctx context.Context, key string, body []byte) error {
	if _, err := j.store.PutBytes(ctx, key, body); err != nil {
		return &PutError{Backend: j.Backend(), Key: key, Err: err}
	}
	return nil
}
