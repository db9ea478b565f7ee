package plot

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/farowl/co2mond/internal/measure"
)

func sampleSeries(t *testing.T, base string, offsets []time.Duration, ppm []int) []measure.Measurement {
	t.Helper()
	require.Equal(t, len(offsets), len(ppm))

	start, err := time.Parse(measure.TimeLayout, base)
	require.NoError(t, err)

	out := make([]measure.Measurement, len(offsets))
	for i := range offsets {
		out[i] = measure.Measurement{
			Timestamp:   start.Add(offsets[i]),
			CO2:         ppm[i],
			Temperature: 21.0,
			Humidity:    40.0,
		}
	}

	return out
}

func countDarkGray(img *image.Gray) int {
	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y < 128 {
				dark++
			}
		}
	}

	return dark
}

func TestRenderFullDimensions(t *testing.T) {
	series := sampleSeries(t, "2025-03-14 12:00:00",
		[]time.Duration{0, time.Minute, 2 * time.Minute},
		[]int{500, 600, 550})

	start := series[0].Timestamp.Add(-time.Minute)
	end := series[len(series)-1].Timestamp.Add(time.Minute)

	img := RenderFull(series, start, end, DefaultGap)
	assert.Equal(t, fullWidth, img.Bounds().Dx())
	assert.Equal(t, fullHeight, img.Bounds().Dy())
}

func TestRenderFullDrawsSeries(t *testing.T) {
	series := sampleSeries(t, "2025-03-14 12:00:00",
		[]time.Duration{0, time.Minute, 2 * time.Minute},
		[]int{500, 600, 550})

	start := series[0].Timestamp
	end := series[len(series)-1].Timestamp

	with := countDarkGray(RenderFull(series, start, end, DefaultGap))
	without := countDarkGray(RenderFull(nil, start, end, DefaultGap))
	assert.Greater(t, with, without, "series should add dark pixels over bare axes")
}

func TestRenderFullGapBreaksLine(t *testing.T) {
	// Two dense clusters separated by an hour. With the default gap the
	// clusters must not be joined, so the gapped image has fewer dark
	// pixels than one rendered with an unlimited gap.
	offsets := []time.Duration{0, time.Minute, time.Hour, time.Hour + time.Minute}
	series := sampleSeries(t, "2025-03-14 12:00:00", offsets, []int{500, 510, 900, 910})

	start := series[0].Timestamp
	end := series[len(series)-1].Timestamp

	gapped := countDarkGray(RenderFull(series, start, end, DefaultGap))
	joined := countDarkGray(RenderFull(series, start, end, 2*time.Hour))
	assert.Less(t, gapped, joined)
}

func TestRenderCompactDimensions(t *testing.T) {
	series := sampleSeries(t, "2025-03-14 12:00:00",
		[]time.Duration{0, time.Minute},
		[]int{500, 600})

	img := RenderCompact(series, 400, 1600, DefaultGap)
	assert.Equal(t, compactWidth, img.Bounds().Dx())
	assert.Equal(t, compactHeight, img.Bounds().Dy())
}

func TestRenderCompactEmptySnapshot(t *testing.T) {
	img := RenderCompact(nil, 400, 1600, DefaultGap)
	require.NotNil(t, img)
	assert.Greater(t, countDarkGray(img), 0, "placeholder text should be drawn")
}

func TestValueRangeClampsAndPads(t *testing.T) {
	series := sampleSeries(t, "2025-03-14 12:00:00",
		[]time.Duration{0, time.Minute},
		[]int{480, 520})

	lo, hi := valueRange(series)
	assert.LessOrEqual(t, lo, 430)
	assert.GreaterOrEqual(t, hi, 570)

	lo, hi = valueRange(nil)
	assert.Equal(t, 400, lo)
	assert.Equal(t, 2000, hi)
}

func TestBoardLatest(t *testing.T) {
	b := NewBoard()
	assert.Nil(t, b.Latest())

	img := RenderCompact(nil, 400, 1600, DefaultGap)
	b.Set(img)
	assert.Same(t, img, b.Latest())
}
