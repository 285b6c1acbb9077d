package syslog

import (
	"fmt"
	"strings"
)

// Severity is a syslog severity level. Lower values are more severe,
// following RFC 5424 numbering.
type Severity uint8

const (
	Emerg Severity = iota
	Alert
	Crit
	Err
	Warning
	Notice
	Info
	Debug
)

var severityNames = [...]string{
	Emerg:   "emerg",
	Alert:   "alert",
	Crit:    "crit",
	Err:     "err",
	Warning: "warning",
	Notice:  "notice",
	Info:    "info",
	Debug:   "debug",
}

// AllSeverities returns every severity, most severe first.
func AllSeverities() []Severity {
	return []Severity{Emerg, Alert, Crit, Err, Warning, Notice, Info, Debug}
}

// ParseSeverity maps a syslog severity token to its Severity.
// Only the canonical lowercase names are accepted.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if s == name {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
}

// Valid reports whether s is one of the eight syslog severities.
func (s Severity) Valid() bool {
	return int(s) < len(severityNames)
}

// AtLeast reports whether s is as severe as threshold or more.
func (s Severity) AtLeast(threshold Severity) bool {
	return s <= threshold
}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
	return severityNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeverity, uint8(s))
	}
	return []byte(severityNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(strings.ToLower(strings.TrimSpace(string(text))))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
