package display

import (
	"context"
	"fmt"
	"image"
	"time"

	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/notify"
	"codeberg.org/farowl/co2mond/internal/plot"
)

// calibrationPoll is the refresh cadence while a calibration cycle is
// running, so the panel tracks the state machine instead of the clock.
const calibrationPoll = 3 * time.Second

// Calibration reports whether a calibration cycle is in progress.
type Calibration interface {
	Active() bool
}

// Warmup reports whether the sampler is still discarding readings.
type Warmup interface {
	Warming() bool
}

// Scheduler redraws the panel at the top of every minute, or sooner
// when woken by the bus. Identical frames are not redrawn; e-paper
// refreshes are slow and visible.
type Scheduler struct {
	dev      Device
	store    *measure.Store
	board    *plot.Board
	bus      *notify.Bus
	cal      Calibration
	warm     Warmup
	sleeping bool
	now      func() time.Time
}

func NewScheduler(dev Device, store *measure.Store, board *plot.Board, bus *notify.Bus, cal Calibration, warm Warmup) *Scheduler {
	return &Scheduler{
		dev:   dev,
		store: store,
		board: board,
		bus:   bus,
		cal:   cal,
		warm:  warm,
		now:   time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	if err := s.dev.Init(); err != nil {
		logger.Error().Err(err).Msg("Display init failed, scheduler stopped")

		return
	}

	sub := s.bus.Subscribe()
	lastKey := ""

	for {
		calibrating := s.cal.Active()
		frame := s.buildFrame(calibrating)
		chart := s.board.Latest()

		key := frameKey(frame, chart)
		if key != lastKey {
			if s.draw(frame, chart) {
				lastKey = key
			}
		}

		timeout := s.untilNextMinute()
		if calibrating {
			timeout = calibrationPoll
		}

		events := sub.Wait(ctx, timeout)
		if ctx.Err() != nil {
			return
		}
		if events.Has(notify.ForceRedraw) {
			lastKey = ""
		}
	}
}

func (s *Scheduler) buildFrame(calibrating bool) Frame {
	now := s.now()
	frame := Frame{
		Clock:       now.Format("15:04"),
		Date:        now.Format("Mon 02 Jan"),
		Calibrating: calibrating,
	}

	latest, ok := s.store.Latest()
	if !ok || s.warm.Warming() {
		frame.Reading = "----"
	} else {
		frame.Reading = fmt.Sprintf("%d ppm", latest.CO2)
	}

	return frame
}

// draw renders and pushes one frame, waking the panel first when it
// was put to sleep. Returns false when the frame did not make it out.
func (s *Scheduler) draw(frame Frame, chart *image.Gray) bool {
	if s.sleeping {
		if err := s.dev.Init(); err != nil {
			logger.Error().Err(err).Msg("Display wake failed")

			return false
		}
		s.sleeping = false
	}

	if err := s.dev.Draw(Render(frame, chart)); err != nil {
		logger.Error().Err(err).Msg("Display draw failed")

		return false
	}

	if err := s.dev.Sleep(); err != nil {
		logger.Warn().Err(err).Msg("Display sleep failed")
	} else {
		s.sleeping = true
	}

	return true
}

func (s *Scheduler) untilNextMinute() time.Duration {
	now := s.now()

	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

func frameKey(f Frame, chart *image.Gray) string {
	return fmt.Sprintf("%s|%s|%s|%v|%p", f.Clock, f.Date, f.Reading, f.Calibrating, chart)
}
