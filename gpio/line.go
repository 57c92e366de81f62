package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/fezhat"
)

var _ fezhat.LineOpener = &HostLines{}
var _ fezhat.Line = &PinLine{}

// HostLines opens lines of the host SoC through periph.io, addressed by BCM number.
type HostLines struct {
	once    sync.Once
	initErr error
}

func NewHostLines() *HostLines {
	return &HostLines{}
}

func (h *HostLines) OpenLine(number int, mode fezhat.Mode) (fezhat.Line, error) {
	h.once.Do(func() {
		_, h.initErr = host.Init()
	})
	if h.initErr != nil {
		return nil, fmt.Errorf("could not init host: %w", h.initErr)
	}
	name := fmt.Sprintf("GPIO%d", number)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio line %s not found", name)
	}
	line := &PinLine{pin: pin}
	if err := line.SetMode(mode); err != nil {
		return nil, err
	}
	return line, nil
}

// PinLine is a single periph.io pin. Outputs start low.
type PinLine struct {
	mx   sync.Mutex
	pin  gpio.PinIO
	mode fezhat.Mode
}

func (l *PinLine) Mode() fezhat.Mode {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.mode
}

func (l *PinLine) SetMode(mode fezhat.Mode) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	var err error
	switch mode {
	case fezhat.ModeInput:
		err = l.pin.In(gpio.PullNoChange, gpio.NoEdge)
	case fezhat.ModeOutput:
		err = l.pin.Out(gpio.Low)
	default:
		return fmt.Errorf("gpio %s: mode %d: %w", l.pin.Name(), mode, fezhat.ErrOutOfRange)
	}
	if err != nil {
		return fmt.Errorf("gpio %s: could not set %s mode: %w", l.pin.Name(), mode, err)
	}
	l.mode = mode
	return nil
}

func (l *PinLine) Read() (bool, error) {
	return l.pin.Read() == gpio.High, nil
}

func (l *PinLine) Write(value bool) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.mode != fezhat.ModeOutput {
		return fmt.Errorf("gpio %s: write on input line: %w", l.pin.Name(), fezhat.ErrOutOfRange)
	}
	if err := l.pin.Out(gpio.Level(value)); err != nil {
		return fmt.Errorf("gpio %s: could not write: %w", l.pin.Name(), err)
	}
	return nil
}

// Close returns the pin to a high impedance input.
func (l *PinLine) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("gpio %s: could not release: %w", l.pin.Name(), err)
	}
	l.mode = fezhat.ModeInput
	return l.pin.Halt()
}
