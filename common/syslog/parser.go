package syslog

import (
	"strings"
	"time"
	"unicode"
)

// Accepted date/time prefixes.
const (
	// LayoutISO is the prefix the agent ships: "2024-03-05 10:20:30".
	LayoutISO = "2006-01-02 15:04:05"
	// LayoutBSD is the traditional RFC 3164 prefix: "Mar  5 10:20:30".
	LayoutBSD = "Jan 2 15:04:05"

	// ISO 8601 without a zone offset, fractional seconds optional.
	layoutLocalT = "2006-01-02T15:04:05.999999999"
)

// bodyFields is the number of tokens after the timestamp prefix:
// host, facility.severity:, process:, message.
const bodyFields = 4

var months = map[string]bool{
	"Jan": true, "Feb": true, "Mar": true, "Apr": true, "May": true, "Jun": true,
	"Jul": true, "Aug": true, "Sep": true, "Oct": true, "Nov": true, "Dec": true,
}

// Parse decomposes one raw log line into a Record.
//
// The line is split into at most six whitespace-delimited tokens (seven
// for year-less BSD timestamps, whose date spans two tokens); the last
// token is the message and keeps its internal whitespace.
func Parse(raw string) (Record, error) {
	line := strings.TrimRight(raw, "\r\n")

	tsTokens := timestampTokens(line)
	fields := splitFields(line, tsTokens+bodyFields)
	if len(fields) < tsTokens+bodyFields {
		return Record{}, &MalformedLineError{
			Line:   raw,
			Reason: "expected date, time, host, facility.severity, process and message fields",
		}
	}

	tsText := strings.Join(fields[:tsTokens], " ")
	ts, err := parseTimestamp(tsText, tsTokens)
	if err != nil {
		return Record{}, &TimestampParseError{Line: raw, Text: tsText, Err: err}
	}

	body := fields[tsTokens:]
	facility, sevText, ok := splitComponent(body[1])
	if !ok {
		return Record{}, &MalformedLineError{
			Line:   raw,
			Reason: "facility.severity token " + quote(body[1]) + " lacks '.' followed by ':'",
		}
	}
	if facility == "" {
		return Record{}, &MalformedLineError{Line: raw, Reason: "empty facility"}
	}
	sev, err := ParseSeverity(sevText)
	if err != nil {
		return Record{}, &UnknownSeverityError{Line: raw, Severity: sevText}
	}

	process := strings.TrimRight(body[2], ":")
	if process == "" {
		return Record{}, &MalformedLineError{Line: raw, Reason: "empty process name"}
	}

	return Record{
		Timestamp:     ts,
		TimestampText: tsText,
		Hostname:      body[0],
		Facility:      facility,
		Severity:      sev,
		Process:       process,
		Message:       body[3],
	}, nil
}

// ParseTimestampPrefix parses only the date/time prefix of line and
// returns the parsed time, the prefix text and the remainder of the line.
// RFC 3339 prefixes ("2024-03-05T10:20:30.123+09:00", as written by
// rsyslog's high precision template) are accepted here so the agent can
// rewrite them to LayoutISO before shipping.
func ParseTimestampPrefix(line string) (time.Time, string, string, error) {
	first := splitFields(line, 2)
	if len(first) == 2 && strings.Contains(first[0], "T") {
		ts, err := time.Parse(time.RFC3339Nano, first[0])
		if err != nil {
			var localErr error
			if ts, localErr = time.Parse(layoutLocalT, first[0]); localErr != nil {
				return time.Time{}, first[0], "", &TimestampParseError{Line: line, Text: first[0], Err: err}
			}
		}
		return ts, first[0], first[1], nil
	}

	n := timestampTokens(line)
	fields := splitFields(line, n+1)
	if len(fields) < n+1 {
		return time.Time{}, "", "", &MalformedLineError{Line: line, Reason: "line too short for a timestamp prefix"}
	}
	text := strings.Join(fields[:n], " ")
	ts, err := parseTimestamp(text, n)
	if err != nil {
		return time.Time{}, text, "", &TimestampParseError{Line: line, Text: text, Err: err}
	}
	return ts, text, fields[n], nil
}

// timestampTokens returns how many leading tokens form the date/time.
func timestampTokens(line string) int {
	first := splitFields(line, 2)
	if len(first) > 0 && months[first[0]] {
		return 3
	}
	return 2
}

func parseTimestamp(text string, tokens int) (time.Time, error) {
	if tokens == 3 {
		return time.Parse(LayoutBSD, text)
	}
	return time.Parse(LayoutISO, text)
}

// splitComponent splits "facility.severity:" once on '.' and the
// remainder once on ':'.
func splitComponent(tok string) (facility, severity string, ok bool) {
	facility, rest, found := strings.Cut(tok, ".")
	if !found {
		return "", "", false
	}
	severity, _, found = strings.Cut(rest, ":")
	if !found {
		return "", "", false
	}
	return facility, severity, true
}

// splitFields splits s around runs of whitespace into at most n fields.
// The last field holds the unsplit remainder with leading whitespace
// removed.
func splitFields(s string, n int) []string {
	var out []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for rest != "" {
		if len(out) == n-1 {
			out = append(out, rest)
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			out = append(out, rest)
			break
		}
		out = append(out, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return out
}

func quote(s string) string {
	return "\"" + s + "\""
}
