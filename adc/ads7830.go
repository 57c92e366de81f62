package adc

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/fezhat"
)

const (
	DefaultAddress = 0x48
	Channels       = 8

	// single-ended inputs, internal reference off, converter on
	cmdSingleEnded = 0x80
	cmdPowerDown   = 0x04
)

// Address derives the bus address from the A0 and A1 select inputs.
func Address(a0, a1 bool) byte {
	addr := byte(DefaultAddress)
	if a0 {
		addr |= 0x01
	}
	if a1 {
		addr |= 0x02
	}
	return addr
}

// Command returns the command byte selecting a single-ended channel. The chip
// interleaves channels: even inputs use select values 0-3, odd inputs 4-7.
func Command(channel int) byte {
	var sel int
	if channel%2 == 0 {
		sel = channel / 2
	} else {
		sel = (channel-1)/2 + 4
	}
	return byte(cmdSingleEnded | cmdPowerDown | sel<<4)
}

// ADS7830 represents Texas Instruments ADS7830 8-bit, 8-channel sampling A/D converter.
// See: https://www.ti.com/lit/ds/symlink/ads7830.pdf
type ADS7830 struct {
	mx        sync.Mutex
	transport fezhat.I2CBus
	address   byte
	released  bool
}

func NewADS7830(bus fezhat.I2CBus, address byte) *ADS7830 {
	return &ADS7830{transport: bus, address: address}
}

// ReadRaw samples channel and returns the conversion result (0-255).
func (a *ADS7830) ReadRaw(ctx context.Context, channel int) (byte, error) {
	if channel < 0 || channel >= Channels {
		return 0, fmt.Errorf("ads7830: channel %d: %w", channel, fezhat.ErrOutOfRange)
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.released {
		return 0, fmt.Errorf("ads7830: %w", fezhat.ErrReleased)
	}
	buf := []byte{0x00}
	err := a.transport.TxToAddr(ctx, a.address, []byte{Command(channel)}, buf)
	if err != nil {
		return 0, fmt.Errorf("ads7830: could not sample channel %d: %w", channel, err)
	}
	return buf[0], nil
}

// Read samples channel and returns the reading normalized to [0, 1].
func (a *ADS7830) Read(ctx context.Context, channel int) (float64, error) {
	raw, err := a.ReadRaw(ctx, channel)
	if err != nil {
		return 0, err
	}
	return Normalize(raw), nil
}

func Normalize(raw byte) float64 {
	return float64(raw) / 255.0
}

func (a *ADS7830) Close() error {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.released = true
	return nil
}
