package fezhat

import (
	"context"
)

// I2cDeviceName is the periph.io name of the bus the HAT sits on.
const I2cDeviceName = "I2C1"

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// AddressableTransceiver performs a write followed by a read as a single bus transaction.
type AddressableTransceiver interface {
	TxToAddr(ctx context.Context, address byte, w, r []byte) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
	AddressableTransceiver
}

type Mode int

const (
	ModeInput Mode = iota
	ModeOutput
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "INPUT"
	case ModeOutput:
		return "OUTPUT"
	default:
		return "UNKNOWN"
	}
}

// Line is a single directly wired GPIO line. true means logical high.
type Line interface {
	Mode() Mode
	SetMode(mode Mode) error
	Read() (bool, error)
	Write(value bool) error
	Close() error
}

// LineOpener opens GPIO lines by their BCM number.
type LineOpener interface {
	OpenLine(number int, mode Mode) (Line, error)
}
