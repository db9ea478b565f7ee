package archive_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/farowl/co2mond/internal/archive"
	"codeberg.org/farowl/co2mond/internal/measure"
)

func newArchive(t *testing.T) archive.Collector {
	t.Helper()
	col, err := archive.NewService(archive.Config{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "archive.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { col.Close() })

	return col
}

func TestRecordAndHourlyStats(t *testing.T) {
	col := newArchive(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	values := []int{500, 520, 480}
	for i, v := range values {
		err := col.Record(ctx, measure.Measurement{
			Timestamp:   base.Add(time.Duration(i) * 10 * time.Minute),
			CO2:         v,
			Temperature: 21.0,
			Humidity:    40.0,
		})
		require.NoError(t, err)
	}
	// One more in the following hour.
	require.NoError(t, col.Record(ctx, measure.Measurement{
		Timestamp: base.Add(70 * time.Minute), CO2: 600,
	}))

	stats, err := col.HourlyStats(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, 3, stats[0].Samples)
	assert.Equal(t, 480, stats[0].MinCO2)
	assert.Equal(t, 520, stats[0].MaxCO2)
	assert.InDelta(t, 500.0, stats[0].AvgCO2, 0.01)
	assert.Equal(t, 1, stats[1].Samples)
	assert.Equal(t, 600, stats[1].MaxCO2)
}

func TestRecordRejectsZeroTimestamp(t *testing.T) {
	col := newArchive(t)

	err := col.Record(context.Background(), measure.Measurement{})
	assert.Error(t, err)
}

func TestDisabledArchiveIsNoop(t *testing.T) {
	col, err := archive.NewService(archive.Config{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, col.Record(context.Background(), measure.Measurement{Timestamp: time.Now()}))
	stats, err := col.HourlyStats(context.Background(), time.Time{})
	assert.NoError(t, err)
	assert.Nil(t, stats)
	assert.NoError(t, col.Close())
}

func TestEnabledArchiveRequiresPath(t *testing.T) {
	_, err := archive.NewService(archive.Config{Enabled: true})
	assert.Error(t, err)
}
