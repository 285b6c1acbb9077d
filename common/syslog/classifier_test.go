package syslog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUnusual(t *testing.T) {
	for _, sev := range []Severity{Emerg, Alert, Crit, Err} {
		assert.True(t, IsUnusual(sev), sev.String())
	}
	for _, sev := range []Severity{Warning, Notice, Info, Debug} {
		assert.False(t, IsUnusual(sev), sev.String())
	}
	assert.False(t, IsUnusual(Severity(42)))
}

func TestClassifier_ZeroValueUsesDefault(t *testing.T) {
	var c Classifier
	assert.Equal(t, DefaultUnusual, c.Severities())
	assert.Equal(t, DefaultUnusual, NewClassifier(nil).Severities())
}

func TestClassifier_Configured(t *testing.T) {
	c := NewClassifier([]Severity{Emerg, Warning})
	assert.True(t, c.IsUnusual(Emerg))
	assert.True(t, c.IsUnusual(Warning))
	assert.False(t, c.IsUnusual(Err))
	assert.False(t, c.IsUnusual(Severity(99)))
	assert.Equal(t, []Severity{Emerg, Warning}, c.Severities())
}

func TestSeveritiesAtOrAbove(t *testing.T) {
	assert.Equal(t, DefaultUnusual, SeveritiesAtOrAbove(Err))
	assert.Equal(t, []Severity{Emerg}, SeveritiesAtOrAbove(Emerg))
	assert.Len(t, SeveritiesAtOrAbove(Debug), 8)
}

func TestParseSeverities(t *testing.T) {
	sevs, err := ParseSeverities([]string{"EMERG", " crit ", "warning"})
	require.NoError(t, err)
	assert.Equal(t, []Severity{Emerg, Crit, Warning}, sevs)

	_, err = ParseSeverities([]string{"err", "panic"})
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}

func TestSeverity_TextRoundTrip(t *testing.T) {
	for _, sev := range AllSeverities() {
		text, err := sev.MarshalText()
		require.NoError(t, err)

		var back Severity
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, sev, back)
	}

	_, err := Severity(8).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownSeverity)
	assert.Equal(t, "severity(8)", Severity(8).String())
}

func TestRecord_JSON(t *testing.T) {
	rec, err := Parse("2024-03-05 10:20:30 host kern.crit: kernel: disk failure")
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"crit"`)
	assert.Contains(t, string(data), `"facility":"kern"`)
}
