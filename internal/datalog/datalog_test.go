package datalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/farowl/co2mond/internal/datalog"
	"codeberg.org/farowl/co2mond/internal/measure"
)

func newLog(t *testing.T) *datalog.Log {
	t.Helper()
	log, err := datalog.New(t.TempDir())
	require.NoError(t, err)

	return log
}

func TestAppendCreatesSegmentWithHeader(t *testing.T) {
	log := newLog(t)

	ts := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)
	m := measure.Measurement{Timestamp: ts, CO2: 512, Temperature: 21.34, Humidity: 40.27}
	require.NoError(t, log.Append(m))

	data, err := os.ReadFile(filepath.Join(log.Dir(), "co2_2025-03-14.csv"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,co2_ppm,temperature_c,humidity_rh", lines[0])
	assert.Equal(t, "2025-03-14 12:00:00,512,21.3,40.3", lines[1])
}

func TestAppendSplitsSegmentsByDay(t *testing.T) {
	log := newLog(t)

	require.NoError(t, log.Append(measure.Measurement{
		Timestamp: time.Date(2025, 3, 14, 23, 59, 0, 0, time.Local), CO2: 500,
	}))
	require.NoError(t, log.Append(measure.Measurement{
		Timestamp: time.Date(2025, 3, 15, 0, 1, 0, 0, time.Local), CO2: 501,
	}))

	_, err := os.Stat(filepath.Join(log.Dir(), "co2_2025-03-14.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(log.Dir(), "co2_2025-03-15.csv"))
	assert.NoError(t, err)
}

func TestLoadWindowSpansMidnight(t *testing.T) {
	log := newLog(t)

	now := time.Date(2025, 3, 15, 1, 0, 0, 0, time.Local)
	inWindow := []measure.Measurement{
		{Timestamp: now.Add(-3 * time.Hour), CO2: 480, Temperature: 20.0, Humidity: 39.0},
		{Timestamp: now.Add(-1 * time.Hour), CO2: 490, Temperature: 20.5, Humidity: 39.5},
		{Timestamp: now.Add(-1 * time.Minute), CO2: 495, Temperature: 20.6, Humidity: 39.6},
	}
	old := measure.Measurement{Timestamp: now.Add(-20 * time.Hour), CO2: 400}

	// Append out of order; the loader must sort.
	require.NoError(t, log.Append(inWindow[1]))
	require.NoError(t, log.Append(old))
	require.NoError(t, log.Append(inWindow[0]))
	require.NoError(t, log.Append(inWindow[2]))

	got := log.LoadWindow(now, 12*time.Hour)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp), "result must be sorted")
	}
	assert.Equal(t, 480, got[0].CO2)
	assert.Equal(t, 495, got[2].CO2)
}

func TestLoadWindowSkipsMalformedRows(t *testing.T) {
	log := newLog(t)

	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, log.Append(measure.Measurement{Timestamp: now.Add(-time.Hour), CO2: 480}))

	// Corrupt the segment with junk rows.
	path := filepath.Join(log.Dir(), "co2_2025-03-15.csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not,a,valid\n2025-03-15 11:30:00,notanumber,1.0,2.0\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, log.Append(measure.Measurement{Timestamp: now.Add(-time.Minute), CO2: 490}))

	got := log.LoadWindow(now, 12*time.Hour)
	require.Len(t, got, 2, "malformed rows are skipped, valid rows kept")
	assert.Equal(t, 480, got[0].CO2)
	assert.Equal(t, 490, got[1].CO2)
}

func TestLoadRange(t *testing.T) {
	log := newLog(t)

	days := []time.Time{
		time.Date(2025, 3, 12, 10, 0, 0, 0, time.Local),
		time.Date(2025, 3, 13, 10, 0, 0, 0, time.Local),
		time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local),
	}
	for i, d := range days {
		require.NoError(t, log.Append(measure.Measurement{Timestamp: d, CO2: 400 + i}))
	}

	got, err := log.LoadRange(days[0].Add(time.Hour), days[2])
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 401, got[0].CO2)
	assert.Equal(t, 402, got[1].CO2)

	_, err = log.LoadRange(days[2], days[0])
	assert.Error(t, err, "inverted range is rejected")
}

func TestDataRange(t *testing.T) {
	log := newLog(t)

	_, _, ok := log.DataRange()
	assert.False(t, ok, "empty log has no range")

	first := time.Date(2025, 3, 12, 8, 0, 0, 0, time.Local)
	last := time.Date(2025, 3, 14, 20, 0, 0, 0, time.Local)
	require.NoError(t, log.Append(measure.Measurement{Timestamp: first, CO2: 430}))
	require.NoError(t, log.Append(measure.Measurement{Timestamp: first.Add(time.Hour), CO2: 440}))
	require.NoError(t, log.Append(measure.Measurement{Timestamp: last, CO2: 450}))

	gotFirst, gotLast, ok := log.DataRange()
	require.True(t, ok)
	assert.True(t, gotFirst.Equal(first))
	assert.True(t, gotLast.Equal(last))
}

func TestRoundTripThroughWindow(t *testing.T) {
	log := newLog(t)

	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.Local)
	window := 12 * time.Hour

	persisted := []measure.Measurement{
		{Timestamp: now.Add(-14 * time.Hour), CO2: 410, Temperature: 19.0, Humidity: 38.0},
		{Timestamp: now.Add(-2 * time.Hour), CO2: 420, Temperature: 19.5, Humidity: 38.5},
		{Timestamp: now.Add(-1 * time.Hour), CO2: 430, Temperature: 20.0, Humidity: 39.0},
	}
	for _, m := range persisted {
		require.NoError(t, log.Append(m))
	}

	got := log.LoadWindow(now, window)
	require.Len(t, got, 2, "entries older than the window are excluded")
	assert.Equal(t, persisted[1], got[0])
	assert.Equal(t, persisted[2], got[1])
}

func TestLoadWindowKeepsRowsAheadOfClock(t *testing.T) {
	log := newLog(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)
	require.NoError(t, log.Append(measure.Measurement{Timestamp: now.Add(-time.Hour), CO2: 500}))
	// Stamped after "now": the wall clock stepped backwards between runs.
	require.NoError(t, log.Append(measure.Measurement{Timestamp: now.Add(30 * time.Minute), CO2: 600}))

	got := log.LoadWindow(now, 13*time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, 500, got[0].CO2)
	assert.Equal(t, 600, got[1].CO2)
}
