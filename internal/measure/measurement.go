package measure

import "time"

// TimeLayout is the second-precision timestamp format used everywhere a
// measurement is rendered or persisted.
const TimeLayout = "2006-01-02 15:04:05"

// Measurement is one immutable sensor reading.
type Measurement struct {
	Timestamp   time.Time `json:"timestamp"`
	CO2         int       `json:"co2_ppm"`
	Temperature float64   `json:"temperature_c"`
	Humidity    float64   `json:"humidity_rh"`
}

// Before reports whether m was taken before other.
func (m Measurement) Before(other Measurement) bool {
	return m.Timestamp.Before(other.Timestamp)
}
