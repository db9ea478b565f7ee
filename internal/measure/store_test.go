package measure_test

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/farowl/co2mond/internal/measure"
)

func at(h, m, s int) time.Time {
	return time.Date(2025, 3, 14, h, m, s, 0, time.UTC)
}

func TestAppendAndSnapshot(t *testing.T) {
	now := at(12, 0, 10)
	store := measure.NewStoreWithClock(12*time.Hour, func() time.Time { return now })

	first := measure.Measurement{Timestamp: at(12, 0, 0), CO2: 500, Temperature: 21.3, Humidity: 40.0}
	second := measure.Measurement{Timestamp: at(12, 0, 5), CO2: 505, Temperature: 21.4, Humidity: 40.1}

	store.Append(first)
	store.Append(second)

	snap := store.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, first, snap[0])
	assert.Equal(t, second, snap[1])
}

func TestAppendPrunesOutsideWindow(t *testing.T) {
	now := at(12, 0, 10)
	store := measure.NewStoreWithClock(12*time.Hour, func() time.Time { return now })

	store.Append(measure.Measurement{Timestamp: at(12, 0, 0), CO2: 500})
	store.Append(measure.Measurement{Timestamp: at(12, 0, 5), CO2: 505})

	// Jump forward 13h; the next append prunes both earlier entries.
	now = now.Add(13 * time.Hour)
	newest := measure.Measurement{Timestamp: now, CO2: 610}
	store.Append(newest)

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, newest, snap[0])
}

func TestSnapshotAlwaysSortedAndWithinWindow(t *testing.T) {
	now := at(8, 0, 0)
	window := time.Hour
	store := measure.NewStoreWithClock(window, func() time.Time { return now })

	for i := 0; i < 200; i++ {
		now = now.Add(30 * time.Second)
		store.Append(measure.Measurement{Timestamp: now, CO2: 400 + i})
	}

	snap := store.Snapshot()
	assert.True(t, sort.SliceIsSorted(snap, func(i, j int) bool {
		return snap[i].Timestamp.Before(snap[j].Timestamp)
	}), "snapshot must be sorted ascending")

	cutoff := now.Add(-window)
	for _, m := range snap {
		assert.False(t, m.Timestamp.Before(cutoff), "entry %v older than window", m.Timestamp)
	}
}

func TestLatest(t *testing.T) {
	store := measure.NewStore(12 * time.Hour)

	_, ok := store.Latest()
	assert.False(t, ok, "empty store has no latest")

	m := measure.Measurement{Timestamp: time.Now(), CO2: 777}
	store.Append(m)

	got, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, m, got)
}

func TestLoadInitial(t *testing.T) {
	now := at(12, 0, 0)
	store := measure.NewStoreWithClock(12*time.Hour, func() time.Time { return now })

	entries := []measure.Measurement{
		{Timestamp: at(10, 0, 0), CO2: 450},
		{Timestamp: at(11, 0, 0), CO2: 460},
	}
	store.LoadInitial(entries)

	assert.Equal(t, 2, store.Len())

	// The store owns its copy; mutating the input must not leak in.
	entries[0].CO2 = 9999
	snap := store.Snapshot()
	assert.Equal(t, 450, snap[0].CO2)
}

func TestNoLostWritesUnderConcurrentReaders(t *testing.T) {
	store := measure.NewStore(12 * time.Hour)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = store.Snapshot()
					_, _ = store.Latest()
				}
			}
		}()
	}

	base := time.Now()
	const writes = 500
	for i := 0; i < writes; i++ {
		store.Append(measure.Measurement{Timestamp: base.Add(time.Duration(i) * time.Second), CO2: 400 + i})
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, writes, store.Len(), "every append must be observable")
}
