package environment

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/fezhat"
)

const (
	TC74DefaultAddress = 0x4D

	tc74RegTemperature = 0x00
	tc74RegConfig      = 0x01
	tc74DataReady      = 0x40
)

var _ TemperatureSensor = &TC74{}

// TC74 represents a Microchip TC74 digital temperature sensor plugged into the
// I2C header.
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/21462D.pdf
type TC74 struct {
	mx        sync.Mutex
	transport fezhat.I2CBus
	address   byte
	last      float64
}

func NewTC74(bus fezhat.I2CBus, address byte) *TC74 {
	if address == 0 {
		address = TC74DefaultAddress
	}
	return &TC74{transport: bus, address: address}
}

// GetTemperature returns the previous reading while the sensor reports a
// conversion in progress.
func (s *TC74) GetTemperature(ctx context.Context) (float64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	resp := make([]byte, 1)
	err := s.transport.TxToAddr(ctx, s.address, []byte{tc74RegConfig}, resp)
	if err != nil {
		return 0, fmt.Errorf("tc74: could not read config register: %w", err)
	}
	if resp[0]&tc74DataReady == 0 {
		return s.last, nil
	}
	err = s.transport.TxToAddr(ctx, s.address, []byte{tc74RegTemperature}, resp)
	if err != nil {
		return 0, fmt.Errorf("tc74: could not read temperature register: %w", err)
	}
	// two's complement, one degree per bit
	s.last = float64(int8(resp[0]))
	return s.last, nil
}
