package messaging

import "strings"

// Subjects follow {app}.{domain}.{resource}.
const (
	// SubjectAlertsPrefix is suffixed with the sanitized device id.
	SubjectAlertsPrefix = "logship.alerts"
	// SubjectAlertsAll matches alerts from every device.
	SubjectAlertsAll = SubjectAlertsPrefix + ".>"

	SubjectDLQBatches = "logship.dlq.batches"
)

// Header keys set on published messages.
const (
	HeaderDeviceID     = "Logship-Device-Id"
	HeaderPartitionKey = "Logship-Partition-Key"
	HeaderFailure      = "Logship-Failure"
)

// AlertSubject returns the per-device alert subject, e.g.
// logship.alerts.AA:BB:CC.
func AlertSubject(deviceID string) string {
	return SubjectAlertsPrefix + "." + SubjectToken(deviceID)
}

// SubjectToken makes s safe to use as a single subject token: separators,
// wildcards and whitespace become '_'. An empty string becomes "unknown".
func SubjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
