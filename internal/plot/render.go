// Package plot renders measurement snapshots into chart images: a
// full-fidelity PNG for the web page and a constrained 1-bit friendly
// frame for the e-paper display. Rendering is pure: a snapshot and a
// range in, an image out.
package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"codeberg.org/farowl/co2mond/internal/measure"
)

const (
	fullWidth  = 800
	fullHeight = 400

	compactWidth  = 250
	compactHeight = 122

	marginLeft   = 48
	marginRight  = 10
	marginTop    = 14
	marginBottom = 24

	// DefaultGap is the spacing above which consecutive points are not
	// connected by a line.
	DefaultGap = 5 * time.Minute
)

// RenderFull draws the snapshot over [start, end] with axes, hour ticks
// and auto-scaled CO2 range. Points further apart than gap are left
// unconnected.
func RenderFull(snapshot []measure.Measurement, start, end time.Time, gap time.Duration) *image.Gray {
	img := newCanvas(fullWidth, fullHeight)

	lo, hi := valueRange(snapshot)
	area := plotArea(fullWidth, fullHeight)
	drawAxes(img, area, lo, hi)
	drawHourTicks(img, area, start, end)
	drawSeries(img, area, snapshot, start, end, lo, hi, gap)
	text(img, area.Min.X, marginTop-3, fmt.Sprintf("CO2 ppm  %s - %s",
		start.Format("01-02 15:04"), end.Format("01-02 15:04")), 0)

	return img
}

// RenderCompact draws a small frame with a fixed value range so the
// e-paper chart does not rescale between refreshes.
func RenderCompact(snapshot []measure.Measurement, fixedMin, fixedMax int, gap time.Duration) *image.Gray {
	img := newCanvas(compactWidth, compactHeight)

	if len(snapshot) == 0 {
		text(img, 10, compactHeight/2, "no data", 0)
		return img
	}

	start := snapshot[0].Timestamp
	end := snapshot[len(snapshot)-1].Timestamp
	area := image.Rect(2, 2, compactWidth-2, compactHeight-14)
	drawSeries(img, area, snapshot, start, end, fixedMin, fixedMax, gap)
	line(img, area.Min.X, area.Max.Y, area.Max.X, area.Max.Y, 0)
	text(img, 2, compactHeight-3, fmt.Sprintf("%d..%d ppm", fixedMin, fixedMax), 0)

	return img
}

func newCanvas(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: 255}}, image.Point{}, draw.Src)

	return img
}

func plotArea(w, h int) image.Rectangle {
	return image.Rect(marginLeft, marginTop, w-marginRight, h-marginBottom)
}

// valueRange picks a padded y range covering the snapshot, defaulting
// to the indoor-air band when there is nothing to scale against.
func valueRange(snapshot []measure.Measurement) (int, int) {
	if len(snapshot) == 0 {
		return 400, 2000
	}

	lo, hi := snapshot[0].CO2, snapshot[0].CO2
	for _, m := range snapshot {
		if m.CO2 < lo {
			lo = m.CO2
		}
		if m.CO2 > hi {
			hi = m.CO2
		}
	}
	lo -= 50
	hi += 50
	if lo < 0 {
		lo = 0
	}
	if hi-lo < 100 {
		hi = lo + 100
	}

	return lo, hi
}

func drawAxes(img *image.Gray, area image.Rectangle, lo, hi int) {
	line(img, area.Min.X, area.Min.Y, area.Min.X, area.Max.Y, 0)
	line(img, area.Min.X, area.Max.Y, area.Max.X, area.Max.Y, 0)

	// Five horizontal gridline labels.
	for i := 0; i <= 4; i++ {
		v := lo + (hi-lo)*i/4
		y := yFor(v, lo, hi, area)
		text(img, 2, y+4, fmt.Sprintf("%5d", v), 0)
		if i > 0 {
			dotted(img, area.Min.X, y, area.Max.X, y, 0)
		}
	}
}

func drawHourTicks(img *image.Gray, area image.Rectangle, start, end time.Time) {
	span := end.Sub(start)
	if span <= 0 {
		return
	}

	tick := start.Truncate(time.Hour)
	if tick.Before(start) {
		tick = tick.Add(time.Hour)
	}
	for !tick.After(end) {
		x := xFor(tick, start, end, area)
		line(img, x, area.Max.Y, x, area.Max.Y+3, 0)
		text(img, x-14, area.Max.Y+14, tick.Format("15:04"), 0)
		tick = tick.Add(time.Hour)
	}
}

func drawSeries(img *image.Gray, area image.Rectangle, snapshot []measure.Measurement,
	start, end time.Time, lo, hi int, gap time.Duration,
) {
	if end.Sub(start) <= 0 {
		return
	}

	prevSet := false
	var prevX, prevY int
	var prevT time.Time
	for _, m := range snapshot {
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		x := xFor(m.Timestamp, start, end, area)
		y := yFor(m.CO2, lo, hi, area)

		if prevSet && m.Timestamp.Sub(prevT) <= gap {
			line(img, prevX, prevY, x, y, 0)
		} else {
			// Gap or first point: mark it so isolated samples are visible.
			img.SetGray(x, y, color.Gray{Y: 0})
		}
		prevX, prevY, prevT, prevSet = x, y, m.Timestamp, true
	}
}

func xFor(t time.Time, start, end time.Time, area image.Rectangle) int {
	frac := float64(t.Sub(start)) / float64(end.Sub(start))

	return area.Min.X + int(frac*float64(area.Dx()-1))
}

func yFor(v, lo, hi int, area image.Rectangle) int {
	if hi <= lo {
		return area.Max.Y
	}
	frac := float64(v-lo) / float64(hi-lo)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	return area.Max.Y - int(frac*float64(area.Dy()-1))
}

func text(img *image.Gray, x, y int, s string, c uint8) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: c}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func dotted(img *image.Gray, x0, y0, x1, y1 int, c uint8) {
	step := 0
	bresenham(x0, y0, x1, y1, func(x, y int) {
		if step%4 == 0 && image.Pt(x, y).In(img.Rect) {
			img.SetGray(x, y, color.Gray{Y: c})
		}
		step++
	})
}

func line(img *image.Gray, x0, y0, x1, y1 int, c uint8) {
	bresenham(x0, y0, x1, y1, func(x, y int) {
		if image.Pt(x, y).In(img.Rect) {
			img.SetGray(x, y, color.Gray{Y: c})
		}
	})
}

func bresenham(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
