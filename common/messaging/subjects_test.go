package messaging

import (
	"strings"
	"testing"
)

func TestAlertSubject(t *testing.T) {
	tests := []struct {
		deviceID string
		want     string
	}{
		{"AA:BB:CC", "logship.alerts.AA:BB:CC"},
		{"1a2b3c4d", "logship.alerts.1a2b3c4d"},
		{"pi.local", "logship.alerts.pi_local"},
		{"bad *>id", "logship.alerts.bad___id"},
		{"", "logship.alerts.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID, func(t *testing.T) {
			got := AlertSubject(tt.deviceID)
			if got != tt.want {
				t.Errorf("AlertSubject(%q) = %q, want %q", tt.deviceID, got, tt.want)
			}
			if !strings.HasPrefix(got, SubjectAlertsPrefix+".") {
				t.Errorf("%q is not under %q", got, SubjectAlertsAll)
			}
			if strings.Count(got, ".") != 2 {
				t.Errorf("%q should have exactly three tokens", got)
			}
		})
	}
}

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	for _, subject := range []string{SubjectDLQBatches, SubjectAlertsPrefix + ".x"} {
		if parts := strings.Split(subject, "."); len(parts) != 3 || parts[0] != "logship" {
			t.Errorf("subject %q does not follow logship.{domain}.{resource}", subject)
		}
	}
}
