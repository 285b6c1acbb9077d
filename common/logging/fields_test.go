package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"service", Service("collector"), FieldService, "collector"},
		{"device id", DeviceID("AA:BB:CC"), FieldDeviceID, "AA:BB:CC"},
		{"partition key", PartitionKey("logs/2024/03/05/x"), FieldPartitionKey, "logs/2024/03/05/x"},
		{"records", Records(3), FieldRecords, "3"},
		{"unusual", Unusual(1), FieldUnusual, "1"},
		{"ip", IP("10.0.0.1"), FieldIP, "10.0.0.1"},
		{"path", Path("/api/v1/logs"), FieldPath, "/api/v1/logs"},
		{"status", Status(201), FieldStatus, "201"},
		{"duration", Duration(1500 * time.Millisecond), FieldDuration, "1500"},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
		{"nil error", Error(nil), FieldError, ""},
		{"channel", Channel("slack"), FieldChannel, "slack"},
		{"file", File("/var/log/syslog"), FieldFile, "/var/log/syslog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if got := tt.attr.Value.String(); got != tt.wantVal {
				t.Errorf("value = %q, want %q", got, tt.wantVal)
			}
		})
	}
}
