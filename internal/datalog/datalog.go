// Package datalog persists measurements into append-only daily CSV
// segments and rebuilds the in-memory window from them at startup.
// Segments are never pruned by the running process.
package datalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/farowl/co2mond/internal/errors"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
)

const (
	header         = "timestamp,co2_ppm,temperature_c,humidity_rh"
	segmentPrefix  = "co2_"
	segmentSuffix  = ".csv"
	dateLayout     = "2006-01-02"
	defaultDirPerm = 0o755
	filePerm       = 0o644
)

// Log owns a directory of daily segments.
type Log struct {
	dir string
	mu  sync.Mutex
}

// New opens (creating if needed) the segment directory.
func New(dir string) (*Log, error) {
	if dir == "" {
		return nil, errors.New().WithMessage(errors.ErrInvalidConfig, "data directory not set")
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, errors.Wrap(errors.ErrLogAppend, err)
	}

	return &Log{dir: dir}, nil
}

// Dir returns the segment directory.
func (l *Log) Dir() string {
	return l.dir
}

// Append writes one record to the segment for m's date, creating the
// segment with a header row when absent. Callers treat failures as
// non-fatal; the measurement stays in memory regardless.
func (l *Log) Append(m measure.Measurement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.segmentPath(m.Timestamp)
	_, statErr := os.Stat(path)
	create := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return errors.Wrap(errors.ErrLogAppend, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if create {
		fmt.Fprintln(w, header)
	}
	fmt.Fprintf(w, "%s,%d,%.1f,%.1f\n",
		m.Timestamp.Format(measure.TimeLayout), m.CO2, m.Temperature, m.Humidity)

	if err := w.Flush(); err != nil {
		return errors.Wrap(errors.ErrLogAppend, err)
	}

	return nil
}

// LoadWindow reads today's and yesterday's segments and returns the
// measurements taken at or after now-window, sorted ascending. Two days
// cover any window up to 24h.
func (l *Log) LoadWindow(now time.Time, window time.Duration) []measure.Measurement {
	cutoff := now.Add(-window)

	var out []measure.Measurement
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		rows, err := l.readSegment(l.segmentPath(day))
		if err != nil {
			if !os.IsNotExist(errors.Unwrap(err)) {
				logger.Warn().Err(err).Str("segment", l.segmentPath(day)).Msg("Skipping unreadable segment")
			}
			continue
		}
		// No upper bound: rows stamped ahead of the current clock (a
		// backwards clock step between runs) are still part of the window.
		for _, m := range rows {
			if !m.Timestamp.Before(cutoff) {
				out = append(out, m)
			}
		}
	}

	sortByTime(out)

	return out
}

// LoadRange reads every segment whose date falls in [start, end] and
// returns the measurements inside the timestamp range, sorted ascending.
func (l *Log) LoadRange(start, end time.Time) ([]measure.Measurement, error) {
	if end.Before(start) {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "range end before start")
	}

	var out []measure.Measurement
	day := truncateToDay(start)
	last := truncateToDay(end)
	for !day.After(last) {
		rows, err := l.readSegment(l.segmentPath(day))
		if err != nil {
			if !os.IsNotExist(errors.Unwrap(err)) {
				return nil, err
			}
			day = day.AddDate(0, 0, 1)
			continue
		}
		for _, m := range rows {
			if !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
				out = append(out, m)
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	sortByTime(out)

	return out, nil
}

// DataRange reports the first and last persisted timestamps across all
// segments. ok is false when no data has been persisted yet.
func (l *Log) DataRange() (first, last time.Time, ok bool) {
	names, err := l.segmentNames()
	if err != nil || len(names) == 0 {
		return time.Time{}, time.Time{}, false
	}

	// Segment names sort chronologically; scan outward in case the
	// earliest or latest file holds no valid rows.
	for _, name := range names {
		rows, err := l.readSegment(filepath.Join(l.dir, name))
		if err == nil && len(rows) > 0 {
			first = rows[0].Timestamp
			break
		}
	}
	for i := len(names) - 1; i >= 0; i-- {
		rows, err := l.readSegment(filepath.Join(l.dir, names[i]))
		if err == nil && len(rows) > 0 {
			last = rows[len(rows)-1].Timestamp
			break
		}
	}
	if first.IsZero() || last.IsZero() {
		return time.Time{}, time.Time{}, false
	}

	return first, last, true
}

func (l *Log) segmentPath(t time.Time) string {
	return filepath.Join(l.dir, segmentPrefix+t.Format(dateLayout)+segmentSuffix)
}

func (l *Log) segmentNames() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLogRead, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names, nil
}

// readSegment parses one segment. Malformed rows are skipped with a
// warning; corruption in old data must never abort a load.
func (l *Log) readSegment(path string) ([]measure.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLogRead, err)
	}
	defer f.Close()

	var out []measure.Measurement
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == header {
			continue
		}

		m, err := parseRow(line)
		if err != nil {
			logger.Warn().
				Str("segment", path).
				Int("line", lineNum).
				Err(err).
				Msg("Skipping malformed data log row")
			continue
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return out, errors.Wrap(errors.ErrLogRead, err)
	}

	return out, nil
}

func parseRow(line string) (measure.Measurement, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return measure.Measurement{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	ts, err := time.ParseInLocation(measure.TimeLayout, fields[0], time.Local)
	if err != nil {
		return measure.Measurement{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}
	co2, err := strconv.Atoi(fields[1])
	if err != nil {
		return measure.Measurement{}, fmt.Errorf("bad co2 value %q: %w", fields[1], err)
	}
	temp, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return measure.Measurement{}, fmt.Errorf("bad temperature %q: %w", fields[2], err)
	}
	hum, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return measure.Measurement{}, fmt.Errorf("bad humidity %q: %w", fields[3], err)
	}

	return measure.Measurement{Timestamp: ts, CO2: co2, Temperature: temp, Humidity: hum}, nil
}

func sortByTime(ms []measure.Measurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Timestamp.Before(ms[j].Timestamp)
	})
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
