package display

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Frame is the content of one panel refresh. Reading holds the
// formatted CO2 value or a warmup placeholder.
type Frame struct {
	Clock       string
	Date        string
	Reading     string
	Calibrating bool
}

// Render draws the frame in landscape orientation. A compact chart, if
// available, forms the background with the status text on top.
func Render(f Frame, chart *image.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, FrameWidth, FrameHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: 255}}, image.Point{}, draw.Src)

	if chart != nil {
		draw.Draw(img, img.Bounds(), chart, chart.Bounds().Min, draw.Src)
	}

	if f.Calibrating {
		bigText(img, 20, 40, "CALIBRATING", 2)
		drawText(img, 20, 90, "hold in fresh air")

		return img
	}

	drawText(img, 4, 14, f.Clock+"  "+f.Date)
	bigText(img, 60, 24, f.Reading, 3)

	return img
}

func drawText(img *image.Gray, x, y int, s string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 0}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// bigText renders s at the given integer scale by blowing up the 7x13
// base face pixel by pixel. (x, y) is the top-left corner.
func bigText(img *image.Gray, x, y int, s string, scale int) {
	face := basicfont.Face7x13
	w := len(s) * face.Advance
	h := face.Height

	tmp := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(tmp, tmp.Bounds(), &image.Uniform{color.Gray{Y: 255}}, image.Point{}, draw.Src)
	drawText(tmp, 0, face.Ascent, s)

	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < w; tx++ {
			if tmp.GrayAt(tx, ty).Y >= 128 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					px, py := x+tx*scale+dx, y+ty*scale+dy
					if image.Pt(px, py).In(img.Rect) {
						img.SetGray(px, py, color.Gray{Y: 0})
					}
				}
			}
		}
	}
}
