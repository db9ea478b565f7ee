// Package button watches a GPIO push button and triggers calibration,
// the same entry point the web API uses.
package button

import (
	"context"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"codeberg.org/farowl/co2mond/internal/errors"
	"codeberg.org/farowl/co2mond/internal/logger"
)

// debounce ignores edges arriving closer together than a human press.
const debounce = 500 * time.Millisecond

// edgeWait bounds each WaitForEdge so the watcher notices ctx
// cancellation.
const edgeWait = time.Second

// Trigger is the calibration entry point the watcher fires.
type Trigger interface {
	Request() bool
}

// Watcher waits for falling edges on a pulled-up input pin.
type Watcher struct {
	pin gpio.PinIn
	ctl Trigger
}

func NewWatcher(pinName string, ctl Trigger) (*Watcher, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, errors.New().WithMessage(errors.ErrCalibration, "gpio pin not found: "+pinName)
	}

	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, errors.Wrap(errors.ErrCalibration, err)
	}

	return &Watcher{pin: pin, ctl: ctl}, nil
}

func (w *Watcher) Run(ctx context.Context) {
	logger.Info().Str("pin", w.pin.Name()).Msg("Calibration button armed")

	last := time.Time{}
	for ctx.Err() == nil {
		if !w.pin.WaitForEdge(edgeWait) {
			continue
		}
		if time.Since(last) < debounce {
			continue
		}
		last = time.Now()

		if w.ctl.Request() {
			logger.Info().Msg("Calibration requested by button")
		} else {
			logger.Debug().Msg("Button pressed during running calibration")
		}
	}
}
