package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"periph.io/x/host/v3"

	"codeberg.org/farowl/co2mond/internal/archive"
	"codeberg.org/farowl/co2mond/internal/button"
	"codeberg.org/farowl/co2mond/internal/calib"
	"codeberg.org/farowl/co2mond/internal/config"
	"codeberg.org/farowl/co2mond/internal/datalog"
	"codeberg.org/farowl/co2mond/internal/display"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/mqttpub"
	"codeberg.org/farowl/co2mond/internal/notify"
	"codeberg.org/farowl/co2mond/internal/pid"
	"codeberg.org/farowl/co2mond/internal/plot"
	"codeberg.org/farowl/co2mond/internal/sampler"
	"codeberg.org/farowl/co2mond/internal/sensor"
	"codeberg.org/farowl/co2mond/internal/web"
)

// shutdownGrace bounds how long main waits for the goroutines to drain
// after the context is cancelled.
const shutdownGrace = 2 * time.Second

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Another instance is running")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("PID file removal failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("Daemon stopped with error")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	log, err := datalog.New(cfg.DataDir)
	if err != nil {
		return err
	}

	store := measure.NewStore(cfg.Window())
	if restored := log.LoadWindow(time.Now(), cfg.Window()); len(restored) > 0 {
		store.LoadInitial(restored)
		logger.Info().Int("count", len(restored)).Msg("Measurement window restored from data log")
	}

	collector, err := archive.NewService(archive.Config{Enabled: cfg.Archive, DBPath: cfg.ArchiveDB})
	if err != nil {
		return err
	}
	defer collector.Close()

	bus := notify.NewBus()
	ctl := calib.NewController(calib.Config{
		ReferencePPM:   cfg.ReferencePPM,
		Stabilization:  cfg.Stabilization(),
		FastInterval:   cfg.FastInterval,
		NormalInterval: cfg.Interval,
	}, bus)

	primary, fallback := selectSensor()
	defer func() {
		if err := primary.Sleep(); err != nil {
			logger.Warn().Err(err).Msg("Sensor sleep failed")
		}
	}()

	samp := sampler.New(
		sampler.Config{Interval: cfg.SampleInterval(), WarmupSamples: cfg.WarmupSamples},
		primary, fallback, store, log, collector, bus, ctl,
	)

	board := plot.NewBoard()
	plotter := plot.NewScheduler(store, board, bus, cfg.DataDir, cfg.PlotInterval(), cfg.PlotGap())
	server := web.NewServer(cfg.ListenAddr, store, log, ctl, collector, bus, plotter.Path())

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			logger.Debug().Str("task", name).Msg("Stopped")
		}()
	}

	start("sampler", samp.Run)
	start("plot", plotter.Run)
	start("web", func(ctx context.Context) {
		if err := server.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Web server stopped")
		}
	})

	var dev display.Device
	if cfg.Display {
		dev = selectDisplay()
		start("display", display.NewScheduler(dev, store, board, bus, ctl, samp).Run)
	}

	if cfg.ButtonPin != "" {
		if watcher, err := button.NewWatcher(cfg.ButtonPin, ctl); err != nil {
			logger.Warn().Err(err).Str("pin", cfg.ButtonPin).Msg("Calibration button unavailable")
		} else {
			start("button", watcher.Run)
		}
	}

	if mqttCfg := (mqttpub.Config{Broker: cfg.MQTTBroker, Topic: cfg.MQTTTopic, ClientID: cfg.MQTTClientID}); mqttCfg.Enabled() {
		start("mqtt", mqttpub.New(mqttCfg, store, bus).Run)
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logger.Warn().Msg("Shutdown grace period elapsed, exiting anyway")
	}

	if dev != nil {
		if err := dev.Halt(); err != nil {
			logger.Warn().Err(err).Msg("Display halt failed")
		}
	}

	return nil
}

// selectSensor picks the hardware sensor unless simulation is forced or
// the platform has no usable I2C bus. The simulated sensor doubles as
// the runtime fallback.
func selectSensor() (primary, fallback sensor.Sensor) {
	fallback = sensor.NewSimulated(time.Now().UnixNano())

	if cfg.Simulated {
		logger.Info().Msg("Simulated sensor forced by config")

		return fallback, fallback
	}

	if _, err := host.Init(); err != nil {
		logger.Error().Err(err).Msg("Hardware init failed, using simulated data")

		return fallback, fallback
	}

	scd, err := sensor.NewSCD30(cfg.I2CBus, cfg.Interval)
	if err != nil {
		logger.Error().Err(err).Msg("SCD30 not reachable, using simulated data")

		return fallback, fallback
	}

	return scd, fallback
}

// selectDisplay prefers the e-paper HAT and falls back to the console
// device when the SPI port is absent.
func selectDisplay() display.Device {
	epd, err := display.NewEPaper()
	if err != nil {
		logger.Warn().Err(err).Msg("E-paper unavailable, using console display")

		return display.NewConsole()
	}

	return epd
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
