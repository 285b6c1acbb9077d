package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/logship/collector/internal/alert"
	"github.com/telhawk-systems/logship/collector/internal/dlq"
	"github.com/telhawk-systems/logship/collector/internal/ledger"
	"github.com/telhawk-systems/logship/collector/internal/metrics"
	"github.com/telhawk-systems/logship/collector/internal/notification"
	"github.com/telhawk-systems/logship/collector/internal/storage"
	"github.com/telhawk-systems/logship/common/batch"
	"github.com/telhawk-systems/logship/common/logging"
	"github.com/telhawk-systems/logship/common/partition"
	"github.com/telhawk-systems/logship/common/syslog"
)

var (
	// ErrStorage means the batch was parsed but could not be stored. The
	// agent should retry.
	ErrStorage      = errors.New("batch storage failed")
	ErrTooManyLines = errors.New("too many lines in batch")
)

// Indexer makes stored records searchable.
type Indexer interface {
	IndexBatch(ctx context.Context, partitionKey string, b *batch.Batch, classifier syslog.Classifier) (*storage.IndexResult, error)
}

// Options are the optional collaborators of IngestService. Nil fields
// disable the corresponding step.
type Options struct {
	Indexer  Indexer
	Ledger   ledger.Recorder
	Signer   *ledger.Signer
	Notifier notification.Channel
	DLQ      dlq.Writer

	// MaxLines caps the lines in one batch; 0 means unlimited.
	MaxLines     int
	AlertTimeout time.Duration
}

// Result describes an accepted batch.
type Result struct {
	PartitionKey string
	ObjectKey    string
	Records      int
	Unusual      int
	Alerted      bool
	Collision    bool
}

// Stats are process-lifetime counters.
type Stats struct {
	Batches         int64     `json:"batches"`
	Records         int64     `json:"records"`
	Unusual         int64     `json:"unusual"`
	Rejected        int64     `json:"rejected"`
	StorageFailures int64     `json:"storage_failures"`
	AlertsSent      int64     `json:"alerts_sent"`
	AlertFailures   int64     `json:"alert_failures"`
	Collisions      int64     `json:"collisions"`
	LastBatch       time.Time `json:"last_batch,omitempty"`
}

// IngestService runs one batch through parse, store, index, record and
// alert. Store is the only step whose failure fails the batch.
type IngestService struct {
	aggregator *batch.Aggregator
	classifier syslog.Classifier
	store      storage.ObjectStore
	opts       Options

	stats      Stats
	statsMutex sync.RWMutex
}

func NewIngestService(classifier syslog.Classifier, store storage.ObjectStore, opts Options) *IngestService {
	if opts.AlertTimeout <= 0 {
		opts.AlertTimeout = 10 * time.Second
	}
	return &IngestService{
		aggregator: batch.NewAggregator(classifier),
		classifier: classifier,
		store:      store,
		opts:       opts,
	}
}

func (s *IngestService) Ingest(ctx context.Context, deviceID string, sentAt time.Time, lines []string) (*Result, error) {
	logger := logging.Default().With(logging.DeviceID(deviceID))

	if s.opts.MaxLines > 0 && len(lines) > s.opts.MaxLines {
		s.reject("too_large")
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyLines, len(lines), s.opts.MaxLines)
	}

	b, unusual, err := s.aggregator.Aggregate(deviceID, sentAt, lines)
	if err != nil {
		s.reject("malformed")
		logger.WarnContext(ctx, "Rejected batch with malformed line", logging.Error(err))
		return nil, err
	}

	res := &Result{
		PartitionKey: partition.Derive(deviceID, sentAt),
		ObjectKey:    partition.ObjectKey(deviceID, sentAt),
		Records:      len(b.Records),
		Unusual:      len(unusual),
	}
	logger = logger.With(logging.PartitionKey(res.PartitionKey))

	body, err := b.MarshalJSONL()
	if err != nil {
		s.reject("encode_failed")
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	if err := s.put(ctx, res.ObjectKey, body); err != nil {
		logger.ErrorContext(ctx, "Failed to store batch", logging.Error(err))
		s.deadLetter(ctx, logger, b, res.ObjectKey, body, err)
		s.updateStats(func(st *Stats) { st.StorageFailures++ })
		metrics.BatchesTotal.WithLabelValues("storage_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.index(ctx, logger, res.PartitionKey, b)
	res.Collision = s.record(ctx, logger, b, res, unusual, body)
	res.Alerted = s.alert(ctx, logger, deviceID, sentAt, unusual)

	metrics.BatchesTotal.WithLabelValues("accepted").Inc()
	metrics.RecordsTotal.Add(float64(res.Records))
	for sev, n := range unusual.CountBySeverity() {
		metrics.UnusualRecordsTotal.WithLabelValues(sev.String()).Add(float64(n))
	}
	s.updateStats(func(st *Stats) {
		st.Batches++
		st.Records += int64(res.Records)
		st.Unusual += int64(res.Unusual)
		st.LastBatch = time.Now().UTC()
		if res.Collision {
			st.Collisions++
		}
	})

	logger.InfoContext(ctx, "Stored batch",
		logging.Records(res.Records),
		logging.Unusual(res.Unusual),
		slog.String("backend", s.store.Backend()),
	)
	return res, nil
}

func (s *IngestService) put(ctx context.Context, key string, body []byte) error {
	backend := s.store.Backend()
	start := time.Now()
	err := s.store.Put(ctx, key, body)
	metrics.StorageDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(backend).Inc()
	}
	return err
}

func (s *IngestService) deadLetter(ctx context.Context, logger *logging.Logger, b *batch.Batch, key string, body []byte, cause error) {
	if s.opts.DLQ == nil {
		return
	}
	failed := dlq.NewFailedBatch(b.DeviceID, b.Timestamp, key, body, cause, dlq.ReasonStorage)
	if err := s.opts.DLQ.Write(ctx, failed); err != nil {
		metrics.DLQWrites.WithLabelValues("failed").Inc()
		logger.ErrorContext(ctx, "Failed to write batch to DLQ", logging.Error(err))
		return
	}
	metrics.DLQWrites.WithLabelValues("written").Inc()
}

func (s *IngestService) index(ctx context.Context, logger *logging.Logger, key string, b *batch.Batch) {
	if s.opts.Indexer == nil {
		return
	}
	res, err := s.opts.Indexer.IndexBatch(ctx, key, b, s.classifier)
	if err != nil {
		metrics.IndexErrors.Add(float64(len(b.Records)))
		logger.WarnContext(ctx, "Failed to index batch", logging.Error(err))
		return
	}
	if res.Failed > 0 {
		metrics.IndexErrors.Add(float64(res.Failed))
		logger.WarnContext(ctx, "Some records failed to index",
			slog.Int("failed", res.Failed),
			slog.Any("errors", res.Errors),
		)
	}
}

func (s *IngestService) record(ctx context.Context, logger *logging.Logger, b *batch.Batch, res *Result, unusual batch.UnusualSet, body []byte) bool {
	if s.opts.Ledger == nil {
		return false
	}

	var digest string
	if s.opts.Signer != nil {
		digest = s.opts.Signer.Sign(res.PartitionKey, b.Timestamp, body)
	}

	counts := make(map[string]int)
	for sev, n := range unusual.CountBySeverity() {
		counts[sev.String()] = n
	}

	collision, err := s.opts.Ledger.Record(ctx, &ledger.Entry{
		DeviceID:       b.DeviceID,
		SentAt:         b.Timestamp,
		PartitionKey:   res.PartitionKey,
		StorageBackend: s.store.Backend(),
		Records:        res.Records,
		Unusual:        res.Unusual,
		SeverityCounts: counts,
		Digest:         digest,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to record batch in ledger", logging.Error(err))
		return false
	}
	if collision {
		metrics.PartitionCollisions.Inc()
		logger.WarnContext(ctx, "Partition key reused; the earlier object was overwritten")
	}
	return collision
}

// alert is best effort: a failed notification never fails a stored batch.
func (s *IngestService) alert(ctx context.Context, logger *logging.Logger, deviceID string, sentAt time.Time, unusual batch.UnusualSet) bool {
	if len(unusual) == 0 || s.opts.Notifier == nil {
		return false
	}

	payload, err := alert.Build(deviceID, sentAt, unusual)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to build alert", logging.Error(err))
		return false
	}

	// The request may finish before a slow webhook does.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.AlertTimeout)
	defer cancel()

	if err := s.opts.Notifier.Send(sendCtx, payload); err != nil {
		metrics.AlertsTotal.WithLabelValues("failed").Inc()
		s.updateStats(func(st *Stats) { st.AlertFailures++ })
		logger.ErrorContext(ctx, "Failed to send alert",
			logging.Channel(s.opts.Notifier.Type()),
			logging.Error(err),
		)
		return false
	}

	metrics.AlertsTotal.WithLabelValues("sent").Inc()
	s.updateStats(func(st *Stats) { st.AlertsSent++ })
	return true
}

func (s *IngestService) reject(reason string) {
	metrics.BatchesTotal.WithLabelValues(reason).Inc()
	s.updateStats(func(st *Stats) { st.Rejected++ })
}

func (s *IngestService) updateStats(fn func(*Stats)) {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	fn(&s.stats)
}

func (s *IngestService) GetStats() Stats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()
	return s.stats
}

// DLQStats reports the dead-letter queue state, or nil when disabled.
func (s *IngestService) DLQStats(ctx context.Context) map[string]interface{} {
	if s.opts.DLQ == nil {
		return nil
	}
	return s.opts.DLQ.Stats(ctx)
}
