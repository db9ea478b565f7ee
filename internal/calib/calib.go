// Package calib coordinates operator-triggered forced recalibration.
// Two independent trigger sources (GPIO button, web handler) funnel into
// one idempotent entry point; the blocking procedure itself is hosted by
// the sampling goroutine so sensor access stays serialized.
package calib

import (
	"context"
	"sync"
	"time"

	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/notify"
	"codeberg.org/farowl/co2mond/internal/sensor"
)

// State is the calibration lifecycle position. Transitions move in one
// direction per cycle: Idle → Requested → Stabilizing → Calibrating →
// Resuming → Idle.
type State int

const (
	Idle State = iota
	Requested
	Stabilizing
	Calibrating
	Resuming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Stabilizing:
		return "stabilizing"
	case Calibrating:
		return "calibrating"
	case Resuming:
		return "resuming"
	default:
		return "unknown"
	}
}

// Config holds the calibration procedure parameters.
type Config struct {
	ReferencePPM   int
	Stabilization  time.Duration
	FastInterval   int // sensor interval during stabilization, seconds
	NormalInterval int // sensor interval to restore, seconds
}

// Controller owns the calibration state. Its lock is independent of the
// measurement store's and is never held across sensor I/O or waits.
type Controller struct {
	mu    sync.Mutex
	state State

	cfg  Config
	bus  *notify.Bus
	wake chan struct{}
}

// NewController creates an idle controller publishing state changes on bus.
func NewController(cfg Config, bus *notify.Bus) *Controller {
	return &Controller{
		cfg:  cfg,
		bus:  bus,
		wake: make(chan struct{}, 1),
	}
}

// Request asks for a calibration cycle. It is idempotent: when a cycle
// is already requested or running the call is a no-op and returns false.
func (c *Controller) Request() bool {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		logger.Debug().Str("state", c.state.String()).Msg("Calibration request ignored, cycle already active")

		return false
	}
	c.state = Requested
	c.mu.Unlock()

	logger.Info().Msg("Calibration requested")
	c.bus.Publish(notify.CalibrationChanged)

	// Shorten the sampler's current wait so the pause is not delayed by
	// a full sampling interval.
	select {
	case c.wake <- struct{}{}:
	default:
	}

	return true
}

// State returns the current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Active reports whether a calibration cycle is requested or running.
func (c *Controller) Active() bool {
	return c.State() != Idle
}

// Wake exposes the channel the sampler selects on while sleeping between
// samples, so a request interrupts the wait.
func (c *Controller) Wake() <-chan struct{} {
	return c.wake
}

// Execute runs one calibration cycle against s. It is called by the
// sampling goroutine when it observes the Requested state; normal
// sampling is suspended for the duration. The cycle always reaches Idle
// again, even when the hardware rejects the calibration or ctx is
// cancelled mid-wait.
func (c *Controller) Execute(ctx context.Context, s sensor.Sensor) {
	c.setState(Stabilizing)

	if err := s.SetInterval(c.cfg.FastInterval); err != nil {
		logger.Warn().Err(err).Msg("Failed to shorten sampling interval for stabilization")
	}

	logger.Info().
		Dur("stabilization", c.cfg.Stabilization).
		Int("reference_ppm", c.cfg.ReferencePPM).
		Msg("Stabilizing before forced recalibration")

	if interrupted := c.stabilize(ctx); interrupted {
		logger.Warn().Msg("Stabilization interrupted by shutdown")
	} else {
		c.setState(Calibrating)
		if err := s.ForceCalibrate(c.cfg.ReferencePPM); err != nil {
			// Logged, not retried; the cycle still unwinds to Idle so
			// the system can never get stuck mid-calibration.
			logger.Error().Err(err).Msg("Forced recalibration rejected by sensor")
		} else {
			logger.Info().Int("reference_ppm", c.cfg.ReferencePPM).Msg("Forced recalibration complete")
		}
	}

	c.setState(Resuming)
	if err := s.SetInterval(c.cfg.NormalInterval); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore sampling interval")
	}

	c.setState(Idle)
	c.bus.Publish(notify.CalibrationChanged | notify.ForceRedraw)
}

// stabilize waits out the stabilization period in one-second increments
// so shutdown is observed promptly. Returns true when interrupted.
func (c *Controller) stabilize(ctx context.Context) bool {
	remaining := c.cfg.Stabilization
	for remaining > 0 {
		step := time.Second
		if remaining < step {
			step = remaining
		}

		select {
		case <-ctx.Done():
			return true
		case <-time.After(step):
		}
		remaining -= step
	}

	return false
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	logger.Debug().Str("state", s.String()).Msg("Calibration state changed")
}
