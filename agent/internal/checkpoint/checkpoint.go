// Package checkpoint persists the timestamp of the newest shipped line.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Layout is the on-disk format: a single "2006-01-02 15:04:05" line.
const Layout = "2006-01-02 15:04:05"

// Store reads and writes the checkpoint file. Times are wall-clock
// values in the syslog file's zone and are kept in UTC without
// conversion, so they compare directly with parsed line prefixes.
type Store struct {
	path     string
	lookback time.Duration
	now      func() time.Time
}

func NewStore(path string, lookback time.Duration) *Store {
	return &Store{path: path, lookback: lookback, now: time.Now}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Lookback() time.Duration {
	return s.lookback
}

// Load returns the stored checkpoint. When the file is missing or
// unreadable it returns now minus the lookback window and found=false.
func (s *Store) Load() (ts time.Time, found bool, err error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.Default(), false, nil
		}
		return s.Default(), false, fmt.Errorf("read checkpoint: %w", err)
	}

	line, _, _ := strings.Cut(string(raw), "\n")
	ts, err = time.Parse(Layout, strings.TrimSpace(line))
	if err != nil {
		return s.Default(), false, nil
	}
	return ts, true, nil
}

// Default is the checkpoint used when none has been written.
func (s *Store) Default() time.Time {
	return WallClock(s.now().Add(-s.lookback))
}

// Save atomically replaces the checkpoint with ts.
func (s *Store) Save(ts time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(ts.Format(Layout) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Reset removes the checkpoint so the next run starts from the default.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// WallClock drops the zone of t, keeping its wall clock fields, and
// truncates to whole seconds.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
