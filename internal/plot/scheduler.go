package plot

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/farowl/co2mond/internal/errors"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/notify"
)

const (
	// startupDelay lets the store fill up a little before the first
	// render, so a fresh daemon does not publish a near-empty chart.
	startupDelay = 30 * time.Second

	compactMin = 400
	compactMax = 1600
)

// Scheduler periodically renders the measurement window, writes the
// full chart to disk for the web server and posts the compact chart to
// the board for the display.
type Scheduler struct {
	store    *measure.Store
	board    *Board
	bus      *notify.Bus
	path     string
	interval time.Duration
	gap      time.Duration
}

func NewScheduler(store *measure.Store, board *Board, bus *notify.Bus, dataDir string, interval, gap time.Duration) *Scheduler {
	if gap <= 0 {
		gap = DefaultGap
	}

	return &Scheduler{
		store:    store,
		board:    board,
		bus:      bus,
		path:     filepath.Join(dataDir, "plot.png"),
		interval: interval,
		gap:      gap,
	}
}

// Path returns where the full chart PNG is written.
func (s *Scheduler) Path() string {
	return s.path
}

func (s *Scheduler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}

	for {
		s.render()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *Scheduler) render() {
	snapshot := s.store.Snapshot()
	now := time.Now()
	start := now.Add(-s.store.Window())

	full := RenderFull(snapshot, start, now, s.gap)
	if err := s.writePNG(full); err != nil {
		logger.ErrorWithCode(err).Msg("Failed to write chart")
	} else {
		logger.Debug().Str("path", s.path).Int("samples", len(snapshot)).Msg("Chart rendered")
	}

	s.board.Set(RenderCompact(snapshot, compactMin, compactMax, s.gap))
	s.bus.Publish(notify.PlotReady)
}

// writePNG writes to a temp file and renames so readers never see a
// partially written image.
func (s *Scheduler) writePNG(img *image.Gray) errors.Error {
	tmp := s.path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(errors.ErrPlotRender, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)

		return errors.Wrap(errors.ErrPlotRender, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)

		return errors.Wrap(errors.ErrPlotRender, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(errors.ErrPlotRender, err)
	}

	return nil
}
