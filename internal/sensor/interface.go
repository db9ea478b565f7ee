package sensor

import "context"

// Reading is one raw sample from a sensor.
type Reading struct {
	CO2         int     // ppm
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// Sensor is the capability interface for a CO2 sensor. The variant
// (hardware or simulated) is chosen once at construction; callers never
// branch on hardware presence afterwards.
type Sensor interface {
	// Init performs the hardware handshake and starts continuous
	// measurement.
	Init() error

	// Read obtains one reading. It may block up to the sampling
	// interval waiting for data and returns early when ctx is done.
	Read(ctx context.Context) (Reading, error)

	// SetInterval changes the sensor-side sampling interval in seconds.
	SetInterval(seconds int) error

	// ForceCalibrate performs a forced recalibration against the given
	// reference concentration in ppm.
	ForceCalibrate(referencePPM int) error

	// Sleep powers the sensor down at end of life.
	Sleep() error

	// Name identifies the sensor variant for logging.
	Name() string
}
