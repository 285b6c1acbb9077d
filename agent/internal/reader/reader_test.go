package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logship/common/syslog"
)

var testNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syslog")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func newTestReader(path string) *Reader {
	r := New(path)
	r.now = func() time.Time { return testNow }
	return r
}

func TestRead_FiltersByCheckpoint(t *testing.T) {
	path := writeLog(t,
		"2024-03-05 10:00:00 pi daemon.info: cron[12]: old line",
		"2024-03-05 10:05:00 pi daemon.info: cron[12]: at checkpoint",
		"2024-03-05 10:05:01 pi kern.err: kernel: newer",
		"",
		"2024-03-05 10:06:00 pi user.notice: app: newest",
	)

	res, err := newTestReader(path).Read(time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2024-03-05 10:05:01 pi kern.err: kernel: newer",
		"2024-03-05 10:06:00 pi user.notice: app: newest",
	}, res.Texts())
	assert.Equal(t, time.Date(2024, 3, 5, 10, 6, 0, 0, time.UTC), res.Latest)
	assert.Equal(t, 4, res.Total)
	assert.Empty(t, res.Skipped)
}

func TestRead_KeepsFileOrder(t *testing.T) {
	path := writeLog(t,
		"2024-03-05 10:07:00 pi daemon.info: a: first",
		"2024-03-05 10:06:00 pi daemon.info: b: second",
	)

	res, err := newTestReader(path).Read(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, res.Lines, 2)
	assert.Contains(t, res.Lines[0].Text, "first")
	assert.Equal(t, time.Date(2024, 3, 5, 10, 7, 0, 0, time.UTC), res.Latest)
}

func TestRead_SkipsMalformedLines(t *testing.T) {
	path := writeLog(t,
		"garbage without timestamp",
		"2024-03-05 10:05:01 pi kern.bogus: kernel: unknown severity",
		"2024-03-05 10:05:02 pi kern.err:",
		"2024-03-05 10:05:03 pi kern.err: kernel: good",
	)

	res, err := newTestReader(path).Read(time.Time{})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-03-05 10:05:03 pi kern.err: kernel: good"}, res.Texts())
	require.Len(t, res.Skipped, 3)
	assert.Equal(t, 1, res.Skipped[0].Number)
	assert.ErrorIs(t, res.Skipped[1].Err, syslog.ErrMalformedLine)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope")).Read(time.Time{})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantTime time.Time
	}{
		{
			name:     "iso unchanged",
			raw:      "2024-03-05 10:20:30 pi kern.err: kernel: oops",
			wantText: "2024-03-05 10:20:30 pi kern.err: kernel: oops",
			wantTime: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "rfc3339 keeps wall clock",
			raw:      "2024-03-05T10:20:30.123456+09:00 pi kern.err: kernel: oops",
			wantText: "2024-03-05 10:20:30 pi kern.err: kernel: oops",
			wantTime: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "T separator without offset",
			raw:      "2024-03-05T10:20:30 pi kern.err: kernel: oops",
			wantText: "2024-03-05 10:20:30 pi kern.err: kernel: oops",
			wantTime: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "bsd gets current year",
			raw:      "Mar  5 10:20:30 pi kern.err: kernel: oops",
			wantText: "2024-03-05 10:20:30 pi kern.err: kernel: oops",
			wantTime: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "bsd december read in march is last year",
			raw:      "Dec 31 23:59:59 pi kern.err: kernel: oops",
			wantText: "2023-12-31 23:59:59 pi kern.err: kernel: oops",
			wantTime: time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "message whitespace kept",
			raw:      "2024-03-05 10:20:30 pi kern.err: kernel:   spaced   out  ",
			wantText: "2024-03-05 10:20:30 pi kern.err: kernel:   spaced   out  ",
			wantTime: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Normalize(tt.raw, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, line.Text)
			assert.Equal(t, tt.wantTime, line.Time)
		})
	}
}

func TestInferYear_LeapDay(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got := inferYear(time.Date(0, 2, 29, 8, 0, 0, 0, time.UTC), now)
	assert.Equal(t, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), got)
}

func TestRead_GeneratedLines(t *testing.T) {
	faker := gofakeit.New(42)
	base := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	var lines []string
	for i := 0; i < 200; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		lines = append(lines, ts.Format(syslog.LayoutISO)+" "+faker.Username()+" daemon.info: "+faker.Word()+"[1]: "+faker.Sentence(6))
	}
	path := writeLog(t, lines...)

	res, err := newTestReader(path).Read(base.Add(149 * time.Second))
	require.NoError(t, err)

	assert.Len(t, res.Lines, 50)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, base.Add(199*time.Second), res.Latest)
}
