package syslog

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLine matches every structural parse failure, including
	// unknown severities.
	ErrMalformedLine = errors.New("malformed log line")

	// ErrUnknownSeverity is returned for severity tokens outside the
	// eight syslog names.
	ErrUnknownSeverity = errors.New("unknown severity")
)

// MalformedLineError reports a line whose token layout does not match
// `<date> <time> <host> <facility>.<severity>: <process>: <message>`.
type MalformedLineError struct {
	Line   string
	Reason string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed log line: %s", e.Reason)
}

func (e *MalformedLineError) Is(target error) bool {
	return target == ErrMalformedLine
}

// UnknownSeverityError reports a well-shaped facility.severity token whose
// severity is not a syslog severity.
type UnknownSeverityError struct {
	Line     string
	Severity string
}

func (e *UnknownSeverityError) Error() string {
	return fmt.Sprintf("malformed log line: unknown severity %q", e.Severity)
}

func (e *UnknownSeverityError) Is(target error) bool {
	return target == ErrMalformedLine || target == ErrUnknownSeverity
}

// TimestampParseError reports a date/time prefix that does not match any
// accepted layout.
type TimestampParseError struct {
	Line string
	Text string
	Err  error
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("invalid log timestamp %q: %v", e.Text, e.Err)
}

func (e *TimestampParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is any of the line parser's errors.
func IsParseError(err error) bool {
	var tsErr *TimestampParseError
	return errors.Is(err, ErrMalformedLine) || errors.As(err, &tsErr)
}
