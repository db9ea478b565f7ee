package display

import (
	"image"
	"image/color"
	"image/draw"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v4"

	"codeberg.org/farowl/co2mond/internal/errors"
)

// EPaper drives a Waveshare 2.13" V4 HAT over SPI. The panel is wired
// in portrait, frames arrive in landscape and are rotated on the way
// out.
type EPaper struct {
	port spi.PortCloser
	dev  *waveshare2in13v4.Dev
}

func NewEPaper() (*EPaper, error) {
	port, err := spireg.Open("")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDisplayUpdate, err)
	}

	opts := waveshare2in13v4.EPD2in13v4
	dev, err := waveshare2in13v4.NewHat(port, &opts)
	if err != nil {
		port.Close()

		return nil, errors.Wrap(errors.ErrDisplayUpdate, err)
	}

	return &EPaper{port: port, dev: dev}, nil
}

func (e *EPaper) Init() error {
	if err := e.dev.Init(); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}
	if err := e.dev.Clear(color.White); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}

	return nil
}

func (e *EPaper) Draw(img image.Image) error {
	portrait := rotatePortrait(img)
	buf := image1bit.NewVerticalLSB(e.dev.Bounds())
	draw.Draw(buf, buf.Bounds(), portrait, image.Point{}, draw.Src)

	if err := e.dev.Draw(e.dev.Bounds(), buf, image.Point{}); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}

	return nil
}

func (e *EPaper) Sleep() error {
	if err := e.dev.Sleep(); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}

	return nil
}

func (e *EPaper) Halt() error {
	if err := e.dev.Init(); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}
	if err := e.dev.Clear(color.White); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}
	if err := e.dev.Halt(); err != nil {
		return errors.Wrap(errors.ErrDisplayUpdate, err)
	}
	e.port.Close()

	return nil
}

// rotatePortrait turns a landscape frame 90 degrees clockwise into the
// panel's native portrait orientation.
func rotatePortrait(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, src.At(x, y))
		}
	}

	return dst
}
