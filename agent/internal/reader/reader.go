// Package reader selects the syslog lines written since the last
// checkpoint and rewrites their timestamp prefix to the form the
// collector parses.
package reader

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/telhawk-systems/logship/agent/internal/checkpoint"
	"github.com/telhawk-systems/logship/common/syslog"
)

const maxLineBytes = 1 << 20

// Line is one accepted line, normalized to the "2006-01-02 15:04:05"
// prefix.
type Line struct {
	Text   string
	Time   time.Time
	Record syslog.Record
}

// Skipped is a line that failed to parse.
type Skipped struct {
	Number int
	Text   string
	Err    error
}

type Result struct {
	Lines   []Line
	Skipped []Skipped
	// Latest is the newest accepted timestamp, or the zero time.
	Latest time.Time
	Total  int
}

// Texts returns the normalized lines in file order.
func (r *Result) Texts() []string {
	out := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = l.Text
	}
	return out
}

type Reader struct {
	path string
	now  func() time.Time
}

func New(path string) *Reader {
	return &Reader{path: path, now: time.Now}
}

// Read returns every well-formed line whose timestamp is after since, in
// file order. Lines that fail to parse are reported in Result.Skipped and
// never shipped.
func (r *Reader) Read(since time.Time) (*Result, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()

	now := checkpoint.WallClock(r.now())
	res := &Result{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	number := 0
	for scanner.Scan() {
		number++
		raw := scanner.Text()
		if isBlank(raw) {
			continue
		}
		res.Total++

		line, err := Normalize(raw, now)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Number: number, Text: raw, Err: err})
			continue
		}
		if !line.Time.After(since) {
			continue
		}

		res.Lines = append(res.Lines, line)
		if line.Time.After(res.Latest) {
			res.Latest = line.Time
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	return res, nil
}

// Normalize rewrites the timestamp prefix of raw to syslog.LayoutISO
// using its wall clock and parses the result. Year-less
// BSD prefixes get the year that places them closest before now.
func Normalize(raw string, now time.Time) (Line, error) {
	ts, _, rest, err := syslog.ParseTimestampPrefix(raw)
	if err != nil {
		return Line{}, err
	}

	wall := checkpoint.WallClock(ts)
	if ts.Year() == 0 {
		wall = inferYear(wall, now)
	}

	text := wall.Format(syslog.LayoutISO) + " " + rest
	rec, err := syslog.Parse(text)
	if err != nil {
		return Line{}, err
	}
	return Line{Text: text, Time: wall, Record: rec}, nil
}

// inferYear places a year-less timestamp in now's year, or the previous
// year when that would put it more than a day in the future (December
// lines read in January). Feb 29 lands in the closest leap year.
func inferYear(ts, now time.Time) time.Time {
	in := func(year int) time.Time {
		if ts.Month() == time.February && ts.Day() == 29 {
			for !isLeap(year) {
				year--
			}
		}
		return time.Date(year, ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
	}

	t := in(now.Year())
	if t.After(now.Add(24 * time.Hour)) {
		t = in(now.Year() - 1)
	}
	return t
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func isBlank(s string) bool {
	for _, c := range s {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
