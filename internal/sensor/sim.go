package sensor

import (
	"context"
	"math/rand"
	"sync"
)

// Simulated produces plausible indoor-air readings without hardware.
// CO2 follows a bounded random walk in the 400–2000 ppm band; the
// auxiliary channels drift slowly around room conditions.
type Simulated struct {
	mu   sync.Mutex
	rng  *rand.Rand
	co2  float64
	temp float64
	hum  float64
}

// NewSimulated creates a simulator seeded with the given source.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{
		rng:  rand.New(rand.NewSource(seed)),
		co2:  600,
		temp: 21.0,
		hum:  40.0,
	}
}

func (s *Simulated) Name() string {
	return "simulated"
}

func (s *Simulated) Init() error {
	return nil
}

func (s *Simulated) Read(_ context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.co2 += s.rng.Float64()*80 - 40
	if s.co2 < 400 {
		s.co2 = 400
	}
	if s.co2 > 2000 {
		s.co2 = 2000
	}
	s.temp += s.rng.Float64()*0.2 - 0.1
	s.hum += s.rng.Float64()*0.6 - 0.3

	return Reading{
		CO2:         int(s.co2),
		Temperature: s.temp,
		Humidity:    s.hum,
	}, nil
}

func (s *Simulated) SetInterval(int) error {
	return nil
}

// ForceCalibrate snaps the simulated baseline to the reference value.
func (s *Simulated) ForceCalibrate(referencePPM int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.co2 = float64(referencePPM)

	return nil
}

func (s *Simulated) Sleep() error {
	return nil
}
