package accel

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/fezhat"
)

const (
	regOutXMSB = 0x01
	regCtrl1   = 0x2A

	ctrl1Active = 0x01
)

const DefaultAddress = 0x1C

// Address derives the bus address from the SA0 select input.
func Address(a0 bool) byte {
	if a0 {
		return DefaultAddress | 0x01
	}
	return DefaultAddress
}

// MMA8453 represents NXP MMA8453Q 3-axis, 10-bit digital accelerometer in its
// default ±2g range.
// See: https://www.nxp.com/docs/en/data-sheet/MMA8453Q.pdf
type MMA8453 struct {
	mx        sync.Mutex
	transport fezhat.I2CBus
	address   byte
	buf       []byte
	released  bool
}

// NewMMA8453 switches the sensor to active mode. The sensor is not usable if
// that fails so no value is returned in that case.
func NewMMA8453(ctx context.Context, trans fezhat.I2CBus, address byte) (*MMA8453, error) {
	err := trans.WriteToAddr(ctx, address, []byte{regCtrl1, ctrl1Active})
	if err != nil {
		return nil, fmt.Errorf("mma8453: could not activate sensor: %w", err)
	}
	return &MMA8453{
		transport: trans,
		address:   address,
		buf:       make([]byte, 6),
	}, nil
}

// GetAcceleration reads all three axes in one burst and returns them in g.
func (s *MMA8453) GetAcceleration(ctx context.Context) (x, y, z float64, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.released {
		return 0, 0, 0, fmt.Errorf("mma8453: %w", fezhat.ErrReleased)
	}
	err = s.transport.TxToAddr(ctx, s.address, []byte{regOutXMSB}, s.buf)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("mma8453: could not read acceleration: %w", err)
	}
	return normalize(s.buf[0:2]), normalize(s.buf[2:4]), normalize(s.buf[4:6]), nil
}

// normalize converts a left-aligned 10-bit two's complement sample to g.
func normalize(sample []byte) float64 {
	value := int(sample[0])<<2 | int(sample[1])>>6
	if value > 511 {
		value -= 1024
	}
	return float64(value) / 256.0
}

func (s *MMA8453) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.released = true
	return nil
}
