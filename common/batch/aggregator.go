// Package batch turns the raw lines of one ingestion call into a parsed
// Batch plus the subset of records that should raise an alert.
package batch

import (
	"fmt"
	"time"

	"github.com/telhawk-systems/logship/common/syslog"
)

// Batch is the parsed content of one ingestion call.
type Batch struct {
	DeviceID string
	// Timestamp is when the batch was sent, not the time of any line.
	Timestamp time.Time
	Records   []syslog.Record
}

// UnusualSet holds the records of a Batch that were classified unusual,
// in their original order.
type UnusualSet []syslog.Record

// CountBySeverity tallies the set per severity.
func (u UnusualSet) CountBySeverity() map[syslog.Severity]int {
	counts := make(map[syslog.Severity]int)
	for _, rec := range u {
		counts[rec.Severity]++
	}
	return counts
}

// LineError identifies the line that aborted a batch.
type LineError struct {
	// Index is the zero-based position of the line in the input.
	Index int
	Line  string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Index+1, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Aggregator parses and classifies batches. The zero value classifies
// with syslog.DefaultUnusual.
type Aggregator struct {
	Classifier syslog.Classifier
}

// NewAggregator returns an Aggregator using classifier.
func NewAggregator(classifier syslog.Classifier) *Aggregator {
	return &Aggregator{Classifier: classifier}
}

// Aggregate parses every line in order. A single unparseable line aborts
// the whole batch with a *LineError; no partial batch is returned.
func (a *Aggregator) Aggregate(deviceID string, ts time.Time, lines []string) (*Batch, UnusualSet, error) {
	b := &Batch{
		DeviceID:  deviceID,
		Timestamp: ts,
		Records:   make([]syslog.Record, 0, len(lines)),
	}
	var unusual UnusualSet

	for i, line := range lines {
		rec, err := syslog.Parse(line)
		if err != nil {
			return nil, nil, &LineError{Index: i, Line: line, Err: err}
		}
		b.Records = append(b.Records, rec)
		if a.Classifier.IsUnusual(rec.Severity) {
			unusual = append(unusual, rec)
		}
	}

	return b, unusual, nil
}

// Aggregate runs the default Aggregator.
func Aggregate(deviceID string, ts time.Time, lines []string) (*Batch, UnusualSet, error) {
	var a Aggregator
	return a.Aggregate(deviceID, ts, lines)
}
