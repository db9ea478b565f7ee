package display

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/notify"
	"codeberg.org/farowl/co2mond/internal/plot"
)

type fakeDevice struct {
	mu      sync.Mutex
	draws   int
	inits   int
	sleeps  int
	initErr error
}

func (d *fakeDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++

	return d.initErr
}

func (d *fakeDevice) Draw(img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws++

	return nil
}

func (d *fakeDevice) Sleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sleeps++

	return nil
}

func (d *fakeDevice) Halt() error { return nil }

func (d *fakeDevice) drawCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.draws
}

type fakeCal struct {
	mu     sync.Mutex
	active bool
}

func (c *fakeCal) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active
}

type fakeWarm struct {
	mu      sync.Mutex
	warming bool
}

func (w *fakeWarm) Warming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.warming
}

func newTestScheduler(dev Device) (*Scheduler, *measure.Store, *notify.Bus) {
	bus := notify.NewBus()
	store := measure.NewStore(13 * time.Hour)
	s := NewScheduler(dev, store, plot.NewBoard(), bus, &fakeCal{}, &fakeWarm{})

	fixed := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)
	s.now = func() time.Time { return fixed }

	return s, store, bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerRedrawsOnNewMeasurement(t *testing.T) {
	dev := &fakeDevice{}
	s, store, bus := newTestScheduler(dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	waitFor(t, func() bool { return dev.drawCount() == 1 })

	store.Append(measure.Measurement{Timestamp: time.Now(), CO2: 640})
	bus.Publish(notify.MeasurementAdded)
	waitFor(t, func() bool { return dev.drawCount() == 2 })

	cancel()
	<-done
}

func TestSchedulerSkipsUnchangedFrame(t *testing.T) {
	dev := &fakeDevice{}
	s, _, bus := newTestScheduler(dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	waitFor(t, func() bool { return dev.drawCount() == 1 })

	// Nothing changed, so repeated wakeups must not refresh the panel.
	for i := 0; i < 3; i++ {
		bus.Publish(notify.MeasurementAdded)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, dev.drawCount())

	cancel()
	<-done
}

func TestSchedulerForceRedraw(t *testing.T) {
	dev := &fakeDevice{}
	s, _, bus := newTestScheduler(dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	waitFor(t, func() bool { return dev.drawCount() == 1 })

	bus.Publish(notify.ForceRedraw)
	waitFor(t, func() bool { return dev.drawCount() == 2 })

	cancel()
	<-done
}

func TestSchedulerStopsWhenInitFails(t *testing.T) {
	dev := &fakeDevice{initErr: errors.New("no spi")}
	s, _, _ := newTestScheduler(dev)

	done := make(chan struct{})
	go func() { s.Run(context.Background()); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on init failure")
	}
	assert.Zero(t, dev.drawCount())
}

func TestBuildFramePlaceholderDuringWarmup(t *testing.T) {
	dev := &fakeDevice{}
	s, store, _ := newTestScheduler(dev)

	frame := s.buildFrame(false)
	assert.Equal(t, "----", frame.Reading, "empty store shows placeholder")

	store.Append(measure.Measurement{Timestamp: time.Now(), CO2: 512})
	frame = s.buildFrame(false)
	assert.Equal(t, "512 ppm", frame.Reading)
	assert.Equal(t, "12:00", frame.Clock)

	s.warm = &fakeWarm{warming: true}
	frame = s.buildFrame(false)
	assert.Equal(t, "----", frame.Reading, "warmup hides the reading")
}

func TestRenderCalibrationFrame(t *testing.T) {
	img := Render(Frame{Calibrating: true}, nil)
	require.NotNil(t, img)
	assert.Equal(t, FrameWidth, img.Bounds().Dx())
	assert.Equal(t, FrameHeight, img.Bounds().Dy())
}

func TestFrameKeyChangesWithContent(t *testing.T) {
	a := Frame{Clock: "12:00", Date: "Fri 14 Mar", Reading: "512 ppm"}
	b := a
	b.Reading = "640 ppm"

	assert.NotEqual(t, frameKey(a, nil), frameKey(b, nil))
	assert.Equal(t, frameKey(a, nil), frameKey(a, nil))

	chart := image.NewGray(image.Rect(0, 0, 1, 1))
	assert.NotEqual(t, frameKey(a, nil), frameKey(a, chart))
}
