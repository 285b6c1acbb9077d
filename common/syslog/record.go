package syslog

import "time"

// Record is one parsed syslog line. Records are values and are never
// modified after Parse returns them.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	// TimestampText is the date/time prefix as it appeared in the line,
	// with runs of whitespace collapsed.
	TimestampText string   `json:"timestamp_text"`
	Hostname      string   `json:"hostname"`
	Facility      string   `json:"facility"`
	Severity      Severity `json:"severity"`
	Process       string   `json:"process"`
	Message       string   `json:"message"`
}

// Component returns the facility.severity pair, e.g. "kernel.err".
func (r Record) Component() string {
	return r.Facility + "." + r.Severity.String()
}
