package devicestats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/logship/common/logging"
)

// Recorder buffers per-device usage in memory and flushes it to Redis
// every interval. Safe for concurrent use.
type Recorder struct {
	client   *Client
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]*Usage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecorder(client *Client, interval time.Duration, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	r := &Recorder{
		client:   client,
		interval: interval,
		logger:   logger,
		pending:  make(map[string]*Usage),
		cancel:   cancel,
	}
	r.wg.Add(1)
	go r.loop(ctx)
	return r
}

// Record notes one accepted batch.
func (r *Recorder) Record(deviceID string, records, unusual int, partitionKey, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.pending[deviceID]
	if !ok {
		u = NewUsage(deviceID)
		r.pending[deviceID] = u
	}
	u.Add(records, unusual, partitionKey, ip)
}

func (r *Recorder) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Flush()
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// Flush writes everything pending. Devices whose write fails are kept
// for the next flush.
func (r *Recorder) Flush() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]*Usage)
	r.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for id, u := range pending {
		if err := r.client.Flush(ctx, u); err != nil {
			r.logger.Error("Failed to flush device stats",
				logging.DeviceID(id),
				slog.Int64("records", u.Records),
				logging.Error(err),
			)
			r.mu.Lock()
			if newer, ok := r.pending[id]; ok {
				newer.merge(u)
			} else {
				r.pending[id] = u
			}
			r.mu.Unlock()
			continue
		}
		flushed++
	}
	r.logger.Debug("Flushed device stats", slog.Int("devices", flushed))
}

// Pending returns buffered record counts per device.
func (r *Recorder) Pending() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int64, len(r.pending))
	for id, u := range r.pending {
		out[id] = u.Records
	}
	return out
}

// Stop flushes what is pending and stops the background loop.
func (r *Recorder) Stop() {
	r.cancel()
	r.wg.Wait()
}
