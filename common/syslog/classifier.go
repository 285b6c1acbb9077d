package syslog

import (
	"fmt"
	"strings"
)

// DefaultUnusual is the set of severities that raise an alert unless
// configured otherwise.
var DefaultUnusual = []Severity{Emerg, Alert, Crit, Err}

// IsUnusual reports whether sev belongs to DefaultUnusual.
func IsUnusual(sev Severity) bool {
	return sev.Valid() && sev.AtLeast(Err)
}

// Classifier decides which severities count as unusual. The zero value
// uses DefaultUnusual.
type Classifier struct {
	configured bool
	unusual    [len(severityNames)]bool
}

// NewClassifier returns a Classifier for the given set. An empty set
// yields the default classification.
func NewClassifier(unusual []Severity) Classifier {
	var c Classifier
	if len(unusual) == 0 {
		return c
	}
	c.configured = true
	for _, sev := range unusual {
		if sev.Valid() {
			c.unusual[sev] = true
		}
	}
	return c
}

// IsUnusual reports whether sev is in the classifier's set.
func (c Classifier) IsUnusual(sev Severity) bool {
	if !c.configured {
		return IsUnusual(sev)
	}
	return sev.Valid() && c.unusual[sev]
}

// Severities returns the unusual set, most severe first.
func (c Classifier) Severities() []Severity {
	var out []Severity
	for _, sev := range AllSeverities() {
		if c.IsUnusual(sev) {
			out = append(out, sev)
		}
	}
	return out
}

// SeveritiesAtOrAbove returns every severity at least as severe as threshold.
func SeveritiesAtOrAbove(threshold Severity) []Severity {
	var out []Severity
	for _, sev := range AllSeverities() {
		if sev.AtLeast(threshold) {
			out = append(out, sev)
		}
	}
	return out
}

// ParseSeverities parses a list of severity names, as found in configuration.
func ParseSeverities(names []string) ([]Severity, error) {
	out := make([]Severity, 0, len(names))
	for _, name := range names {
		sev, err := ParseSeverity(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("parse severities: %w", err)
		}
		out = append(out, sev)
	}
	return out, nil
}
