// Package runner ties the reader, shipper and checkpoint together.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/logship/agent/internal/checkpoint"
	"github.com/telhawk-systems/logship/agent/internal/reader"
	"github.com/telhawk-systems/logship/agent/internal/shipper"
	"github.com/telhawk-systems/logship/common/logging"
)

// Shipper posts one batch to the collector.
type Shipper interface {
	Ship(ctx context.Context, deviceID string, sentAt time.Time, lines []string) (*shipper.Response, error)
}

type Config struct {
	DeviceID string
	// MaxLines caps the lines per batch; 0 sends everything at once.
	MaxLines int
}

type Runner struct {
	cfg     Config
	reader  *reader.Reader
	shipper Shipper
	store   *checkpoint.Store
	logger  *logging.Logger
	now     func() time.Time

	lastSent time.Time
}

func New(cfg Config, r *reader.Reader, s Shipper, store *checkpoint.Store, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		cfg:     cfg,
		reader:  r,
		shipper: s,
		store:   store,
		logger:  logger.With(logging.DeviceID(cfg.DeviceID)),
		now:     time.Now,
	}
}

// Report summarizes one pass.
type Report struct {
	Since         time.Time
	Checkpoint    time.Time
	Read          int
	Shipped       int
	Skipped       int
	Unusual       int
	PartitionKeys []string
}

// RunOnce ships every line newer than the checkpoint. After each accepted
// batch the checkpoint moves up, but never to or past an unshipped line,
// so a failed batch is resent on the next run even when the file is not
// in time order.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	since, found, err := r.store.Load()
	if err != nil {
		r.logger.Warn("Checkpoint unreadable, using lookback window", logging.Error(err))
	}
	if !found {
		r.logger.Info("No checkpoint, starting from lookback window", slog.Time("since", since))
	}

	res, err := r.reader.Read(since)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Since:      since,
		Checkpoint: since,
		Read:       len(res.Lines),
		Skipped:    len(res.Skipped),
	}
	for _, s := range res.Skipped {
		r.logger.Warn("Skipping unparseable line",
			slog.Int("line", s.Number),
			logging.Error(s.Err),
		)
	}

	if len(res.Lines) == 0 {
		r.logger.Debug("No new lines", slog.Time("since", since))
		return report, nil
	}

	chunks := Split(res.Lines, r.cfg.MaxLines)
	pendingMin := earliestAfter(chunks)
	var shippedMax time.Time

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		texts := make([]string, len(chunk))
		for j, l := range chunk {
			texts[j] = l.Text
			if l.Time.After(shippedMax) {
				shippedMax = l.Time
			}
		}

		resp, err := r.shipper.Ship(ctx, r.cfg.DeviceID, r.sendTime(), texts)
		if err != nil {
			return report, fmt.Errorf("ship %d lines: %w", len(texts), err)
		}

		next := safeCheckpoint(shippedMax, pendingMin[i])
		if next.After(report.Checkpoint) {
			if err := r.store.Save(next); err != nil {
				return report, err
			}
			report.Checkpoint = next
		}
		report.Shipped += len(texts)
		report.Unusual += resp.Unusual
		report.PartitionKeys = append(report.PartitionKeys, resp.PartitionKey)

		r.logger.Info("Shipped batch",
			logging.PartitionKey(resp.PartitionKey),
			logging.Records(len(texts)),
			logging.Unusual(resp.Unusual),
		)
	}
	return report, nil
}

// earliestAfter returns, for each chunk, the earliest line time in the
// chunks after it. The zero time means nothing follows.
func earliestAfter(chunks [][]reader.Line) []time.Time {
	out := make([]time.Time, len(chunks))
	var earliest time.Time
	for i := len(chunks) - 1; i >= 0; i-- {
		out[i] = earliest
		for _, l := range chunks[i] {
			if earliest.IsZero() || l.Time.Before(earliest) {
				earliest = l.Time
			}
		}
	}
	return out
}

// safeCheckpoint is the newest shipped time that leaves every unshipped
// line strictly after it. Checkpoints have one-second resolution, so an
// unshipped line at or before shippedMax pulls the checkpoint back to one
// second before it. Shipped lines above that point are resent if a later
// batch fails.
func safeCheckpoint(shippedMax, pendingMin time.Time) time.Time {
	if pendingMin.IsZero() || pendingMin.After(shippedMax) {
		return shippedMax
	}
	return pendingMin.Add(-time.Second)
}

// sendTime returns the envelope timestamp, at least one second after the
// previous batch so consecutive batches get distinct partition keys.
func (r *Runner) sendTime() time.Time {
	t := r.now().Truncate(time.Second)
	if !r.lastSent.IsZero() && !t.After(r.lastSent) {
		t = r.lastSent.Add(time.Second)
	}
	r.lastSent = t
	return t
}

// Follow runs once, then again after every change signal (debounced) and
// every poll interval, until ctx is cancelled. Failed passes are logged
// and retried on the next trigger.
func (r *Runner) Follow(ctx context.Context, changes <-chan struct{}, poll, debounce time.Duration) error {
	r.runLogged(ctx)

	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if debounce > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(debounce):
				}
			}
			r.runLogged(ctx)
		case <-tick:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("Shipping failed, will retry",
			logging.Error(err),
			slog.Bool("retryable", shipper.IsRetryable(err)),
		)
	}
}

// Split cuts lines into batches of at most max lines, in file order.
// Adjacent lines sharing a timestamp stay in one batch, so such a run may
// exceed max. Lines are not sorted: in an out-of-order file equal
// timestamps can still land in different batches, and RunOnce keeps the
// checkpoint below every unshipped line either way.
func Split(lines []reader.Line, max int) [][]reader.Line {
	if max <= 0 || len(lines) <= max {
		return [][]reader.Line{lines}
	}

	var out [][]reader.Line
	start := 0
	for start < len(lines) {
		end := start + max
		if end >= len(lines) {
			out = append(out, lines[start:])
			break
		}
		for end < len(lines) && lines[end].Time.Equal(lines[end-1].Time) {
			end++
		}
		out = append(out, lines[start:end])
		start = end
	}
	return out
}
