package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"codeberg.org/farowl/co2mond/internal/logger"
)

// SCD30 NDIR CO2 sensor, I2C address 0x61. Commands are 16-bit words;
// every 16-bit payload word is followed by a CRC-8 (poly 0x31, init 0xFF).
const (
	scd30Addr = 0x61

	cmdStartContinuous  = 0x0010
	cmdStopContinuous   = 0x0104
	cmdSetInterval      = 0x4600
	cmdDataReady        = 0x0202
	cmdReadMeasurement  = 0x0300
	cmdForceRecalibrate = 0x5204
	cmdSoftReset        = 0xD304
)

var (
	ErrNotPresent  = errors.New("scd30 not present on bus")
	ErrBadCRC      = errors.New("scd30 response failed CRC check")
	ErrNotReady    = errors.New("scd30 data not ready")
	ErrReadTimeout = errors.New("scd30 read timed out")
)

// SCD30 drives the sensor over I2C.
type SCD30 struct {
	bus      i2c.BusCloser
	dev      *i2c.Dev
	busName  string
	interval int
}

// NewSCD30 opens the named I2C bus (empty for the first available) and
// wraps the sensor at its fixed address. The handshake happens in Init.
func NewSCD30(busName string, intervalSeconds int) (*SCD30, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", busName, err)
	}

	return &SCD30{
		bus:      bus,
		dev:      &i2c.Dev{Bus: bus, Addr: scd30Addr},
		busName:  busName,
		interval: intervalSeconds,
	}, nil
}

func (s *SCD30) Name() string {
	return "scd30"
}

// Init soft-resets the sensor, programs the measurement interval and
// starts continuous measurement.
func (s *SCD30) Init() error {
	if err := s.writeCommand(cmdSoftReset, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrNotPresent, err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := s.SetInterval(s.interval); err != nil {
		return err
	}

	// Argument 0 disables ambient pressure compensation.
	if err := s.writeCommand(cmdStartContinuous, []uint16{0}); err != nil {
		return fmt.Errorf("start continuous measurement: %w", err)
	}

	logger.Info().Str("bus", s.busName).Msg("SCD30 initialized")

	return nil
}

// Read polls the data-ready flag and fetches one measurement. It gives
// up after the configured interval so a stuck sensor cannot block the
// sampling loop indefinitely.
func (s *SCD30) Read(ctx context.Context) (Reading, error) {
	deadline := time.Now().Add(time.Duration(s.interval) * time.Second)

	for {
		ready, err := s.dataReady()
		if err != nil {
			return Reading{}, err
		}
		if ready {
			break
		}
		if time.Now().After(deadline) {
			return Reading{}, ErrReadTimeout
		}

		select {
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	buf := make([]byte, 18)
	if err := s.dev.Tx([]byte{cmdReadMeasurement >> 8, cmdReadMeasurement & 0xFF}, buf); err != nil {
		return Reading{}, fmt.Errorf("read measurement: %w", err)
	}

	co2, err := decodeFloat(buf[0:6])
	if err != nil {
		return Reading{}, err
	}
	temp, err := decodeFloat(buf[6:12])
	if err != nil {
		return Reading{}, err
	}
	hum, err := decodeFloat(buf[12:18])
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		CO2:         int(math.Round(float64(co2))),
		Temperature: float64(temp),
		Humidity:    float64(hum),
	}, nil
}

// SetInterval programs the sensor-side measurement interval (2..1800s).
func (s *SCD30) SetInterval(seconds int) error {
	if seconds < 2 {
		seconds = 2
	}
	if err := s.writeCommand(cmdSetInterval, []uint16{uint16(seconds)}); err != nil {
		return fmt.Errorf("set interval: %w", err)
	}
	s.interval = seconds

	return nil
}

// ForceCalibrate performs forced recalibration (FRC) against the given
// reference concentration. The sensor must have been sampling in a
// stable environment beforehand.
func (s *SCD30) ForceCalibrate(referencePPM int) error {
	if err := s.writeCommand(cmdForceRecalibrate, []uint16{uint16(referencePPM)}); err != nil {
		return fmt.Errorf("forced recalibration: %w", err)
	}

	return nil
}

// Sleep stops continuous measurement and releases the bus.
func (s *SCD30) Sleep() error {
	if err := s.writeCommand(cmdStopContinuous, nil); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop SCD30 continuous measurement")
	}

	return s.bus.Close()
}

func (s *SCD30) dataReady() (bool, error) {
	buf := make([]byte, 3)
	if err := s.dev.Tx([]byte{cmdDataReady >> 8, cmdDataReady & 0xFF}, buf); err != nil {
		return false, fmt.Errorf("data ready query: %w", err)
	}
	if crc8(buf[0:2]) != buf[2] {
		return false, ErrBadCRC
	}

	return binary.BigEndian.Uint16(buf[0:2]) == 1, nil
}

func (s *SCD30) writeCommand(cmd uint16, args []uint16) error {
	buf := []byte{byte(cmd >> 8), byte(cmd & 0xFF)}
	for _, a := range args {
		word := []byte{byte(a >> 8), byte(a & 0xFF)}
		buf = append(buf, word[0], word[1], crc8(word))
	}

	return s.dev.Tx(buf, nil)
}

// decodeFloat parses a big-endian float32 transmitted as two CRC-guarded
// 16-bit words.
func decodeFloat(b []byte) (float32, error) {
	if crc8(b[0:2]) != b[2] || crc8(b[3:5]) != b[5] {
		return 0, ErrBadCRC
	}
	bits := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[3])<<8 | uint32(b[4])

	return math.Float32frombits(bits), nil
}

func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
