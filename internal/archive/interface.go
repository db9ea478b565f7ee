package archive

import (
	"context"
	"time"

	"codeberg.org/farowl/co2mond/internal/measure"
)

// Collector records accepted measurements into long-term storage and
// answers aggregate queries. Retention is unbounded and independent of
// the in-memory window.
type Collector interface {
	Record(ctx context.Context, m measure.Measurement) error
	HourlyStats(ctx context.Context, since time.Time) ([]HourlyStat, error)
	Close() error
}

// HourlyStat is one hour's aggregate.
type HourlyStat struct {
	Hour    time.Time `json:"hour"`
	AvgCO2  float64   `json:"avg_co2_ppm"`
	MinCO2  int       `json:"min_co2_ppm"`
	MaxCO2  int       `json:"max_co2_ppm"`
	Samples int       `json:"samples"`
}
