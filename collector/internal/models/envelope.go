package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Response codes returned in the "code" field.
const (
	CodeSuccess       = 0
	CodeInvalidToken  = 4
	CodeInvalidData   = 6
	CodeMalformedLine = 7
	CodeUnavailable   = 9
	CodeRateLimited   = 10
)

// IngestRequest is the body an agent POSTs.
type IngestRequest struct {
	DeviceID string `json:"device_id"`
	// Timestamp is ISO-8601: when the batch was sent.
	Timestamp string   `json:"timestamp"`
	Logs      []string `json:"logs"`
}

// IngestResponse is the collector's answer to an IngestRequest.
type IngestResponse struct {
	Text         string `json:"text"`
	Code         int    `json:"code"`
	PartitionKey string `json:"partition_key,omitempty"`
	Records      int    `json:"records"`
	Unusual      int    `json:"unusual"`
	// InvalidLine is the zero-based index of the line that failed to parse.
	InvalidLine *int `json:"invalid_line,omitempty"`
}

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidDeviceID = errors.New("invalid device_id")
)

// MaxDeviceIDLength bounds device_id.
const MaxDeviceIDLength = 128

// Device ids become part of object keys, so path separators, ".." and
// control characters are refused.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9:._-]+$`)

// ValidateDeviceID reports whether id is safe to embed in a partition key.
func ValidateDeviceID(id string) error {
	switch {
	case len(id) > MaxDeviceIDLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDeviceID, MaxDeviceIDLength)
	case !deviceIDPattern.MatchString(id):
		return fmt.Errorf("%w: only letters, digits and \":._-\" are allowed", ErrInvalidDeviceID)
	case strings.Contains(id, ".."):
		return fmt.Errorf("%w: must not contain \"..\"", ErrInvalidDeviceID)
	}
	return nil
}

// Validate checks the required fields and the device id. An empty logs
// array is allowed.
func (r *IngestRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.DeviceID) == "":
		return fmt.Errorf("%w: device_id", ErrMissingField)
	case strings.TrimSpace(r.Timestamp) == "":
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	case r.Logs == nil:
		return fmt.Errorf("%w: logs", ErrMissingField)
	}
	return ValidateDeviceID(r.DeviceID)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 forms agents send, with or without
// a zone offset and fractional seconds. Values without an offset keep
// their wall clock and are placed in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected ISO-8601", s)
}
