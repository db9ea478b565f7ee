// Package sampler runs the producer loop: it obtains readings from the
// sensor, fills the measurement store, persists to the data log and
// announces new data. Calibration requests are observed at loop
// boundaries and suspend normal sampling for the duration of the cycle.
package sampler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/farowl/co2mond/internal/calib"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/notify"
	"codeberg.org/farowl/co2mond/internal/sensor"
)

const readFailureBackoff = 5 * time.Second

// Appender persists accepted measurements. Failures are logged and
// swallowed; persistence must never abort acquisition.
type Appender interface {
	Append(m measure.Measurement) error
}

// Recorder is an optional secondary sink (the sqlite archive).
type Recorder interface {
	Record(ctx context.Context, m measure.Measurement) error
}

// Config holds the sampling parameters.
type Config struct {
	Interval      time.Duration
	WarmupSamples int

	// Backoff is the pause after a failed read; defaults to 5s.
	Backoff time.Duration
}

// Sampler is the single producer goroutine's state.
type Sampler struct {
	cfg      Config
	store    *measure.Store
	datalog  Appender
	archive  Recorder
	bus      *notify.Bus
	ctl      *calib.Controller
	fallback sensor.Sensor
	rng      *rand.Rand

	mu        sync.Mutex
	current   sensor.Sensor
	simulated bool
	warming   bool
}

// New assembles a sampler. archive may be nil. fallback is the
// simulated sensor used when the primary fails.
func New(cfg Config, primary, fallback sensor.Sensor, store *measure.Store,
	datalog Appender, archive Recorder, bus *notify.Bus, ctl *calib.Controller,
) *Sampler {
	if cfg.Backoff <= 0 {
		cfg.Backoff = readFailureBackoff
	}

	return &Sampler{
		cfg:       cfg,
		store:     store,
		datalog:   datalog,
		archive:   archive,
		bus:       bus,
		ctl:       ctl,
		current:   primary,
		fallback:  fallback,
		simulated: primary == fallback,
		warming:   true,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Warming reports whether the loop is still discarding warmup readings;
// the display shows a placeholder until this clears.
func (s *Sampler) Warming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.warming
}

// Simulated reports whether the loop has fallen back to simulated data.
func (s *Sampler) Simulated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.simulated
}

// Run executes the acquisition loop until ctx is cancelled. It never
// returns on sensor failure: a failed hardware handshake or read forces
// a permanent fallback to simulated data.
func (s *Sampler) Run(ctx context.Context) {
	if err := s.sensor().Init(); err != nil {
		logger.Error().Err(err).Msg("Sensor handshake failed, falling back to simulated data")
		s.degrade()
	}

	logger.Info().
		Str("sensor", s.sensor().Name()).
		Dur("interval", s.cfg.Interval).
		Int("warmup_samples", s.cfg.WarmupSamples).
		Msg("Sampling started")

	warmupLeft := s.cfg.WarmupSamples
	s.setWarming(warmupLeft > 0)

	for {
		if ctx.Err() != nil {
			return
		}

		// Calibration is checked at loop boundaries only; a request
		// mid-wait shortens the wait via the controller's wake channel.
		if s.ctl.State() == calib.Requested {
			s.ctl.Execute(ctx, s.sensor())
			warmupLeft = s.cfg.WarmupSamples
			s.setWarming(warmupLeft > 0)
			continue
		}

		if !s.waitInterval(ctx) {
			return
		}
		if s.ctl.State() == calib.Requested {
			continue
		}

		reading, err := s.sensor().Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Str("sensor", s.sensor().Name()).
				Msg("Sensor read failed, switching to simulated data")
			s.degrade()
			if !sleepCtx(ctx, s.cfg.Backoff) {
				return
			}
			continue
		}

		if warmupLeft > 0 {
			warmupLeft--
			logger.Debug().
				Int("co2_ppm", reading.CO2).
				Int("warmup_left", warmupLeft).
				Msg("Discarding warmup reading")
			continue
		}
		s.setWarming(false)

		s.accept(ctx, reading)
	}
}

// accept commits one reading: store first, then the durable sinks, then
// the notification, so any woken consumer observes the new data.
func (s *Sampler) accept(ctx context.Context, r sensor.Reading) {
	m := measure.Measurement{
		Timestamp:   time.Now().Truncate(time.Second),
		CO2:         r.CO2,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	}

	s.store.Append(m)

	if err := s.datalog.Append(m); err != nil {
		logger.Warn().Err(err).Msg("Data log append failed, measurement kept in memory only")
	}
	if s.archive != nil {
		if err := s.archive.Record(ctx, m); err != nil {
			logger.Warn().Err(err).Msg("Archive record failed")
		}
	}

	logger.Debug().
		Int("co2_ppm", m.CO2).
		Float64("temperature_c", m.Temperature).
		Float64("humidity_rh", m.Humidity).
		Msg("Measurement accepted")

	s.bus.Publish(notify.MeasurementAdded)
}

// waitInterval blocks for one sampling interval (a randomized fraction
// of it in simulated mode), returning early on a calibration request.
// Returns false when ctx is cancelled.
func (s *Sampler) waitInterval(ctx context.Context) bool {
	d := s.cfg.Interval
	if s.Simulated() {
		s.mu.Lock()
		frac := 0.2 + 0.8*s.rng.Float64()
		s.mu.Unlock()
		d = time.Duration(float64(d) * frac)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.ctl.Wake():
		return true
	case <-timer.C:
		return true
	}
}

func (s *Sampler) sensor() sensor.Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// degrade switches to the simulated sensor for all subsequent
// iterations. The process never exits on sensor failure.
func (s *Sampler) degrade() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.simulated {
		return
	}
	s.current = s.fallback
	s.simulated = true
}

func (s *Sampler) setWarming(v bool) {
	s.mu.Lock()
	s.warming = v
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
