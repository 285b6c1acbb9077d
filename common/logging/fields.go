package logging

import (
	"log/slog"
	"time"
)

// Field names shared by the collector and the agent.
const (
	FieldService      = "service"
	FieldRequestID    = "request_id"
	FieldDeviceID     = "device_id"
	FieldPartitionKey = "partition_key"
	FieldRecords      = "records"
	FieldUnusual      = "unusual"
	FieldIP           = "ip"
	FieldPath         = "path"
	FieldStatus       = "status"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldChannel      = "channel"
	FieldFile         = "file"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// DeviceID returns a slog attribute for the shipping device.
func DeviceID(id string) slog.Attr {
	return slog.String(FieldDeviceID, id)
}

// PartitionKey returns a slog attribute for a storage object key.
func PartitionKey(key string) slog.Attr {
	return slog.String(FieldPartitionKey, key)
}

// Records returns a slog attribute for a record count.
func Records(n int) slog.Attr {
	return slog.Int(FieldRecords, n)
}

// Unusual returns a slog attribute for the number of unusual records.
func Unusual(n int) slog.Attr {
	return slog.Int(FieldUnusual, n)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Path returns a slog attribute for an HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for an elapsed duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error yields an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Channel returns a slog attribute for a notification channel type.
func Channel(name string) slog.Attr {
	return slog.String(FieldChannel, name)
}

// File returns a slog attribute for a file path.
func File(path string) slog.Attr {
	return slog.String(FieldFile, path)
}
