// Package dlq keeps batches the collector accepted but could not store,
// so they can be inspected and replayed.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reasons recorded on failed batches.
const (
	ReasonStorage = "storage_failed"
)

// FailedBatch captures a batch with the failure that sent it here.
type FailedBatch struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	DeviceID     string    `json:"device_id"`
	SentAt       time.Time `json:"sent_at"`
	PartitionKey string    `json:"partition_key"`
	// Body is the serialized object that failed to store.
	Body        string    `json:"body"`
	Error       string    `json:"error"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

// NewFailedBatch stamps a new entry with an id and the current time.
func NewFailedBatch(deviceID string, sentAt time.Time, partitionKey string, body []byte, cause error, reason string) *FailedBatch {
	now := time.Now().UTC()
	fb := &FailedBatch{
		ID:           uuid.NewString(),
		Timestamp:    now,
		DeviceID:     deviceID,
		SentAt:       sentAt,
		PartitionKey: partitionKey,
		Body:         string(body),
		Reason:       reason,
		Attempts:     1,
		LastAttempt:  now,
	}
	if cause != nil {
		fb.Error = cause.Error()
	}
	return fb
}

// Writer is implemented by every DLQ backend.
type Writer interface {
	Write(ctx context.Context, failed *FailedBatch) error
	Stats(ctx context.Context) map[string]interface{}
}

var ErrNotFound = errors.New("dlq entry not found")

// Queue writes failed batches to disk, one JSON file per batch. Only one
// collector instance may share a directory.
type Queue struct {
	basePath string
	mu       sync.Mutex
	written  uint64
}

func NewQueue(basePath string) (*Queue, error) {
	if basePath == "" {
		basePath = "/var/lib/logship/dlq"
	}

	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	return &Queue{basePath: basePath}, nil
}

func (q *Queue) filename(id string) string {
	return filepath.Join(q.basePath, "failed_"+id+".json")
}

func (q *Queue) Write(ctx context.Context, failed *FailedBatch) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if err := os.WriteFile(q.filename(failed.ID), data, 0o640); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	slog.WarnContext(ctx, "DLQ: wrote failed batch",
		slog.String("id", failed.ID),
		slog.String("device_id", failed.DeviceID),
		slog.String("reason", failed.Reason),
	)
	return nil
}

func (q *Queue) Stats(context.Context) map[string]interface{} {
	if q == nil {
		return map[string]interface{}{"enabled": false}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return map[string]interface{}{
			"enabled": true,
			"backend": "file",
			"written": q.written,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"enabled":       true,
		"backend":       "file",
		"written":       q.written,
		"pending_files": len(files),
		"base_path":     q.basePath,
	}
}

func (q *Queue) entries() ([]os.DirEntry, error) {
	all, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}
	var out []os.DirEntry
	for _, e := range all {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "failed_") && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, e)
		}
	}
	return out, nil
}

// List returns up to limit entries, oldest first. limit <= 0 returns all.
func (q *Queue) List(ctx context.Context, limit int) ([]FailedBatch, error) {
	if q == nil {
		return nil, errors.New("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return nil, err
	}

	var batches []FailedBatch
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(q.basePath, file.Name()))
		if err != nil {
			slog.ErrorContext(ctx, "DLQ: failed to read entry", slog.String("file", file.Name()), slog.Any("error", err))
			continue
		}
		var failed FailedBatch
		if err := json.Unmarshal(data, &failed); err != nil {
			slog.ErrorContext(ctx, "DLQ: failed to parse entry", slog.String("file", file.Name()), slog.Any("error", err))
			continue
		}
		batches = append(batches, failed)
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Timestamp.Before(batches[j].Timestamp)
	})
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

// Delete removes the entry with the given id.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if q == nil {
		return errors.New("dlq not enabled")
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.Remove(q.filename(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete dlq entry: %w", err)
	}
	slog.InfoContext(ctx, "DLQ: deleted entry", slog.String("id", id))
	return nil
}

// Purge removes every entry.
func (q *Queue) Purge(ctx context.Context) error {
	if q == nil {
		return errors.New("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.Remove(filepath.Join(q.basePath, file.Name())); err != nil {
			return fmt.Errorf("delete dlq entry: %w", err)
		}
	}
	slog.InfoContext(ctx, "DLQ: purged entries", slog.Int("count", len(files)))
	return nil
}
