package dlq

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFailed(device string) *FailedBatch {
	return NewFailedBatch(device, time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		"logs/2024/03/05/"+device+"_logs20240305_102030.jsonl",
		[]byte(`{"message":"x"}`), errors.New("bucket unavailable"), ReasonStorage)
}

func TestNewFailedBatch(t *testing.T) {
	fb := newFailed("dev")
	assert.NotEmpty(t, fb.ID)
	assert.Equal(t, "bucket unavailable", fb.Error)
	assert.Equal(t, ReasonStorage, fb.Reason)
	assert.Equal(t, 1, fb.Attempts)
	assert.False(t, fb.Timestamp.IsZero())

	assert.NotEqual(t, fb.ID, newFailed("dev").ID)
	assert.Empty(t, NewFailedBatch("d", time.Now(), "k", nil, nil, ReasonStorage).Error)
}

func TestQueue_WriteListDelete(t *testing.T) {
	ctx := context.Background()
	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	first := newFailed("dev-a")
	second := newFailed("dev-b")
	second.Timestamp = first.Timestamp.Add(time.Second)

	require.NoError(t, q.Write(ctx, second))
	require.NoError(t, q.Write(ctx, first))

	all, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "dev-a", all[0].DeviceID, "oldest first")
	assert.Equal(t, `{"message":"x"}`, all[0].Body)

	limited, err := q.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats := q.Stats(ctx)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, uint64(2), stats["written"])
	assert.Equal(t, 2, stats["pending_files"])

	require.NoError(t, q.Delete(ctx, first.ID))
	assert.ErrorIs(t, q.Delete(ctx, first.ID), ErrNotFound)
	assert.ErrorIs(t, q.Delete(ctx, "../../etc/passwd"), ErrNotFound)

	remaining, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)
}

func TestQueue_IgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q, err := NewQueue(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(dir+"/README", []byte("hi"), 0o600))
	require.NoError(t, os.WriteFile(dir+"/failed_broken.json", []byte("{"), 0o600))
	require.NoError(t, q.Write(ctx, newFailed("dev")))

	all, err := q.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "unparseable entries are skipped")

	require.NoError(t, q.Purge(ctx))
	_, err = os.Stat(dir + "/README")
	assert.NoError(t, err, "purge only removes entries")

	all, err = q.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestQueue_Nil(t *testing.T) {
	var q *Queue
	ctx := context.Background()
	assert.NoError(t, q.Write(ctx, newFailed("dev")))
	assert.Equal(t, false, q.Stats(ctx)["enabled"])
	_, err := q.List(ctx, 0)
	assert.Error(t, err)
	assert.Error(t, q.Purge(ctx))

	var js *JetStreamQueue
	assert.NoError(t, js.Write(ctx, newFailed("dev")))
	assert.Equal(t, false, js.Stats(ctx)["enabled"])
}

func TestNewJetStreamQueue_NilClient(t *testing.T) {
	_, err := NewJetStreamQueue(context.Background(), nil)
	assert.Error(t, err)
}
