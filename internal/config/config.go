package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/farowl/co2mond/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultInterval       = 10  // seconds between samples
	defaultWindowHours    = 12  // in-memory retention window
	defaultWarmupSamples  = 2   // readings discarded after (re)start
	defaultReferencePPM   = 400 // forced calibration reference (outdoor air)
	defaultStabilization  = 120 // seconds before forced calibration
	defaultFastInterval   = 2   // sampling interval during stabilization
	defaultPlotInterval   = 15  // minutes between chart renders
	defaultPlotGapMinutes = 5   // gap above which plot lines break
	defaultListenAddr     = ":8080"
	defaultDataDir        = "/var/lib/co2mond"
	defaultI2CBus         = "" // first available
	defaultMQTTTopic      = "co2mond/measurements"
	defaultMQTTClientID   = "co2mond"
)

// Config holds all daemon settings. Values come from the TOML config
// file (CO2MOND_CONFIG or /etc/co2mond.toml), overridden by flags.
type Config struct {
	Interval      int    `mapstructure:"interval"`
	WindowHours   int    `mapstructure:"window_hours"`
	WarmupSamples int    `mapstructure:"warmup_samples"`
	DataDir       string `mapstructure:"data_dir"`
	LogLevel      string `mapstructure:"log_level"`

	// Sensor
	I2CBus    string `mapstructure:"i2c_bus"`
	Simulated bool   `mapstructure:"simulated"`

	// Calibration
	ReferencePPM         int `mapstructure:"reference_ppm"`
	StabilizationSeconds int `mapstructure:"stabilization_seconds"`
	FastInterval         int `mapstructure:"fast_interval"`

	// Display
	Display   bool   `mapstructure:"display"`
	ButtonPin string `mapstructure:"button_pin"`

	// Plot
	PlotIntervalMinutes int `mapstructure:"plot_interval_minutes"`
	PlotGapMinutes      int `mapstructure:"plot_gap_minutes"`

	// Web
	ListenAddr string `mapstructure:"listen_addr"`

	// Archive
	Archive   bool   `mapstructure:"archive"`
	ArchiveDB string `mapstructure:"archive_db"`

	// MQTT
	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`
}

// SampleInterval returns the configured sampling interval as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Window returns the in-memory retention window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// Stabilization returns the pre-calibration stabilization period.
func (c *Config) Stabilization() time.Duration {
	return time.Duration(c.StabilizationSeconds) * time.Second
}

// PlotInterval returns the chart render cadence.
func (c *Config) PlotInterval() time.Duration {
	return time.Duration(c.PlotIntervalMinutes) * time.Minute
}

// PlotGap returns the gap above which consecutive points are not connected.
func (c *Config) PlotGap() time.Duration {
	return time.Duration(c.PlotGapMinutes) * time.Minute
}

func Load() (*Config, error) {
	errFactory := errors.New()
	v := viper.New()

	v.SetDefault("interval", defaultInterval)
	v.SetDefault("window_hours", defaultWindowHours)
	v.SetDefault("warmup_samples", defaultWarmupSamples)
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("i2c_bus", defaultI2CBus)
	v.SetDefault("simulated", false)
	v.SetDefault("reference_ppm", defaultReferencePPM)
	v.SetDefault("stabilization_seconds", defaultStabilization)
	v.SetDefault("fast_interval", defaultFastInterval)
	v.SetDefault("display", true)
	v.SetDefault("button_pin", "")
	v.SetDefault("plot_interval_minutes", defaultPlotInterval)
	v.SetDefault("plot_gap_minutes", defaultPlotGapMinutes)
	v.SetDefault("listen_addr", defaultListenAddr)
	v.SetDefault("archive", false)
	v.SetDefault("archive_db", "")
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_topic", defaultMQTTTopic)
	v.SetDefault("mqtt_client_id", defaultMQTTClientID)

	flags := pflag.NewFlagSet("co2mond", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Int("interval", defaultInterval, "Seconds between samples")
	flags.Int("window-hours", defaultWindowHours, "In-memory retention window in hours")
	flags.String("data-dir", defaultDataDir, "Directory for daily data logs and rendered plots")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("simulated", false, "Force simulated sensor readings")
	flags.Bool("display", true, "Drive the e-paper display")
	flags.String("listen-addr", defaultListenAddr, "Web server listen address")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"interval":     "interval",
		"window-hours": "window_hours",
		"data-dir":     "data_dir",
		"log-level":    "log_level",
		"simulated":    "simulated",
		"display":      "display",
		"listen-addr":  "listen_addr",
	}
	var bindErr error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := bindings[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	if path := os.Getenv("CO2MOND_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("co2mond")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.WindowHours <= 0 || c.WindowHours > 24 {
		return errFactory.WithData(errors.ErrInvalidWindow, c.WindowHours)
	}
	if c.WarmupSamples < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "warmup_samples must be >= 0")
	}
	if c.FastInterval <= 0 || c.FastInterval > c.Interval {
		c.FastInterval = minInt(defaultFastInterval, c.Interval)
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error", "fatal":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Archive && c.ArchiveDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "archive enabled but archive_db not set")
	}

	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
