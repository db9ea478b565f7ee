// Package display drives the status panel: a small e-paper HAT when
// present, a console fallback otherwise. The scheduler owns the frame
// cadence and pushes rendered images through the Device interface.
package display

import (
	"image"

	"codeberg.org/farowl/co2mond/internal/logger"
)

// Landscape frame dimensions of the 2.13" panel.
const (
	FrameWidth  = 250
	FrameHeight = 122
)

// Device is the panel a Scheduler draws to.
type Device interface {
	Init() error
	// Draw pushes a full landscape frame (FrameWidth x FrameHeight).
	Draw(img image.Image) error
	// Sleep puts the panel into low-power mode between refreshes.
	Sleep() error
	// Halt clears the panel and powers it down for shutdown.
	Halt() error
}

// Console is the fallback Device used when no panel hardware is
// available. Frames are acknowledged in the log instead of drawn.
type Console struct{}

func NewConsole() *Console {
	return &Console{}
}

func (c *Console) Init() error {
	logger.Info().Msg("Console display ready")

	return nil
}

func (c *Console) Draw(img image.Image) error {
	b := img.Bounds()
	logger.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Msg("Frame drawn")

	return nil
}

func (c *Console) Sleep() error { return nil }

func (c *Console) Halt() error { return nil }
