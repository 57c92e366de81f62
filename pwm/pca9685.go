package pwm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mklimuk/fezhat"
)

const (
	regMode1    = 0x00
	regMode2    = 0x01
	regLEDBase  = 0x06
	regPrescale = 0xFE

	regIncrement = 4

	mode1Restart       = 0x80
	mode1AutoIncrement = 0x20
	mode1Sleep         = 0x10
	mode2OutDrv        = 0x04

	// full on/off flag, bit 4 of LEDn_ON_H and LEDn_OFF_H
	ledFull = 0x1000
)

const (
	DefaultAddress = 0x40

	OscillatorHz = 25_000_000
	Resolution   = 4096
	MaxTicks     = Resolution - 1
	Channels     = 16

	MinPrescale = 3
	MaxPrescale = 255
)

// oscillator needs at most 500us to stabilise after leaving sleep mode
var wakeDelay = 500 * time.Microsecond

// Address derives the bus address from the six address select inputs.
func Address(a0, a1, a2, a3, a4, a5 bool) byte {
	addr := byte(DefaultAddress)
	for i, set := range []bool{a0, a1, a2, a3, a4, a5} {
		if set {
			addr |= 1 << i
		}
	}
	return addr
}

// PrescaleFor returns the prescaler value producing the frequency closest to hz,
// clamped to what the chip accepts.
func PrescaleFor(hz int) byte {
	prescale := math.Round(float64(OscillatorHz)/(float64(Resolution)*float64(hz))) - 1
	if prescale < MinPrescale {
		return MinPrescale
	}
	if prescale > MaxPrescale {
		return MaxPrescale
	}
	return byte(prescale)
}

// PCA9685 represents NXP PCA9685 16-channel, 12-bit PWM controller.
// See: https://www.nxp.com/docs/en/data-sheet/PCA9685.pdf
//
// All channels share one frequency. Actuators that depend on a particular frequency
// pin it with ReserveFrequency; attempts to change a pinned frequency fail with
// fezhat.ErrFrequencyConflict.
type PCA9685 struct {
	mx        sync.Mutex
	transport fezhat.I2CBus
	address   byte
	oe        fezhat.Line

	frequency    int
	prescale     byte
	enabled      bool
	reservations map[string]int
	released     bool
}

// NewPCA9685 configures the chip for auto-increment, totem pole outputs and leaves
// the outputs disabled. oe is the active-low output enable line.
func NewPCA9685(ctx context.Context, bus fezhat.I2CBus, address byte, oe fezhat.Line) (*PCA9685, error) {
	if oe == nil {
		return nil, fmt.Errorf("pca9685: output enable line is required")
	}
	p := &PCA9685{
		transport:    bus,
		address:      address,
		oe:           oe,
		reservations: map[string]int{},
	}
	if err := p.SetOutputEnabled(false); err != nil {
		return nil, err
	}
	if err := p.writeRegister(ctx, regMode1, mode1AutoIncrement); err != nil {
		return nil, fmt.Errorf("pca9685: could not configure mode 1: %w", err)
	}
	if err := p.writeRegister(ctx, regMode2, mode2OutDrv); err != nil {
		return nil, fmt.Errorf("pca9685: could not configure mode 2: %w", err)
	}
	return p, nil
}

// Frequency returns the last frequency successfully requested, 0 if it was never set.
func (p *PCA9685) Frequency() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.frequency
}

// Prescale returns the prescaler value derived from the current frequency.
func (p *PCA9685) Prescale() byte {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.prescale
}

// ActualFrequency is the frequency the chip really produces with the current prescaler.
func (p *PCA9685) ActualFrequency() float64 {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.frequency == 0 {
		return 0
	}
	return OscillatorHz / (Resolution * (float64(p.prescale) + 1))
}

func (p *PCA9685) OutputEnabled() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.enabled
}

// SetFrequency changes the frequency of all channels. It fails if the frequency is
// reserved with a different value.
func (p *PCA9685) SetFrequency(ctx context.Context, hz int) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return fmt.Errorf("pca9685: %w", fezhat.ErrReleased)
	}
	if hz <= 0 {
		return fmt.Errorf("pca9685: frequency %d Hz: %w", hz, fezhat.ErrOutOfRange)
	}
	if owner, reserved, ok := p.conflicting("", hz); ok {
		slog.Debug("pca9685 frequency change rejected", "requested", hz, "reserved", reserved, "owner", owner)
		return fmt.Errorf("pca9685: %d Hz reserved by %s: %w", reserved, owner, fezhat.ErrFrequencyConflict)
	}
	return p.setFrequency(ctx, hz)
}

// ReserveFrequency sets the frequency to hz if needed and pins it on behalf of owner.
// Reserving again with the same owner replaces the previous reservation.
func (p *PCA9685) ReserveFrequency(ctx context.Context, owner string, hz int) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return fmt.Errorf("pca9685: %w", fezhat.ErrReleased)
	}
	if hz <= 0 {
		return fmt.Errorf("pca9685: frequency %d Hz: %w", hz, fezhat.ErrOutOfRange)
	}
	if other, reserved, ok := p.conflicting(owner, hz); ok {
		return fmt.Errorf("pca9685: %s needs %d Hz but %s reserved %d Hz: %w", owner, hz, other, reserved, fezhat.ErrFrequencyConflict)
	}
	if p.frequency != hz {
		if err := p.setFrequency(ctx, hz); err != nil {
			return err
		}
	}
	p.reservations[owner] = hz
	slog.Debug("pca9685 frequency reserved", "owner", owner, "hz", hz)
	return nil
}

func (p *PCA9685) ReleaseFrequency(owner string) {
	p.mx.Lock()
	defer p.mx.Unlock()
	delete(p.reservations, owner)
}

// conflicting returns the first reservation, other than owner's, pinned to a frequency different from hz.
func (p *PCA9685) conflicting(owner string, hz int) (string, int, bool) {
	owners := make([]string, 0, len(p.reservations))
	for o := range p.reservations {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	for _, o := range owners {
		if o != owner && p.reservations[o] != hz {
			return o, p.reservations[o], true
		}
	}
	return "", 0, false
}

// setFrequency follows the datasheet sequence: the prescaler can only be written while sleeping.
func (p *PCA9685) setFrequency(ctx context.Context, hz int) error {
	prescale := PrescaleFor(hz)
	err := p.writeRegister(ctx, regMode1, mode1AutoIncrement|mode1Sleep)
	if err != nil {
		return fmt.Errorf("pca9685: could not enter sleep mode: %w", err)
	}
	err = p.writeRegister(ctx, regPrescale, prescale)
	if err != nil {
		if werr := p.wake(ctx); werr != nil {
			return fmt.Errorf("pca9685: could not wake up after failed prescaler write (%v): %w: %w", err, fezhat.ErrDriverFault, werr)
		}
		return fmt.Errorf("pca9685: could not write prescaler: %w", err)
	}
	if err = p.wake(ctx); err != nil {
		return fmt.Errorf("pca9685: could not wake up after prescaler write: %w: %w", fezhat.ErrDriverFault, err)
	}
	slog.Debug("pca9685 frequency set", "hz", hz, "prescale", prescale)
	p.frequency = hz
	p.prescale = prescale
	return nil
}

func (p *PCA9685) wake(ctx context.Context) error {
	if err := p.writeRegister(ctx, regMode1, mode1AutoIncrement); err != nil {
		return err
	}
	time.Sleep(wakeDelay)
	return p.writeRegister(ctx, regMode1, mode1AutoIncrement|mode1Restart)
}

// SetOutputEnabled drives the output enable line. Channels can be programmed while
// outputs are disabled.
func (p *PCA9685) SetOutputEnabled(enabled bool) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return fmt.Errorf("pca9685: %w", fezhat.ErrReleased)
	}
	// active low
	if err := p.oe.Write(!enabled); err != nil {
		return fmt.Errorf("pca9685: could not set output enable line: %w", err)
	}
	p.enabled = enabled
	return nil
}

// SetDutyCycle sets the fraction of the period the channel is active. 0 switches the
// channel fully off.
func (p *PCA9685) SetDutyCycle(ctx context.Context, channel int, value float64) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if math.IsNaN(value) || value < 0 || value > 1 {
		return fmt.Errorf("pca9685: duty cycle %v: %w", value, fezhat.ErrOutOfRange)
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return fmt.Errorf("pca9685: %w", fezhat.ErrReleased)
	}
	if value == 0 {
		return p.writeChannel(ctx, channel, 0, ledFull)
	}
	return p.writeChannel(ctx, channel, 0, uint16(math.Round(value*MaxTicks)))
}

// SetChannel writes raw on and off tick values.
func (p *PCA9685) SetChannel(ctx context.Context, channel int, on, off uint16) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if on > MaxTicks || off > MaxTicks {
		return fmt.Errorf("pca9685: ticks on=%d off=%d: %w", on, off, fezhat.ErrOutOfRange)
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return fmt.Errorf("pca9685: %w", fezhat.ErrReleased)
	}
	return p.writeChannel(ctx, channel, on, off)
}

// Channel reads back the tick registers of a channel.
func (p *PCA9685) Channel(ctx context.Context, channel int) (on uint16, off uint16, fullOff bool, err error) {
	if err = checkChannel(channel); err != nil {
		return 0, 0, false, err
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return 0, 0, false, fmt.Errorf("pca9685: %w", fezhat.ErrReleased)
	}
	buf := make([]byte, 4)
	err = p.transport.TxToAddr(ctx, p.address, []byte{channelRegister(channel)}, buf)
	if err != nil {
		return 0, 0, false, fmt.Errorf("pca9685: could not read channel %d: %w", channel, err)
	}
	on = uint16(buf[0]) | uint16(buf[1]&0x0F)<<8
	off = uint16(buf[2]) | uint16(buf[3]&0x0F)<<8
	return on, off, buf[3]&(ledFull>>8) != 0, nil
}

// Close disables the outputs and puts the chip to sleep. Further calls fail with fezhat.ErrReleased.
func (p *PCA9685) Close(ctx context.Context) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.enabled = false
	return multierr.Combine(
		p.oe.Write(true),
		p.writeRegister(ctx, regMode1, mode1AutoIncrement|mode1Sleep),
	)
}

func (p *PCA9685) writeChannel(ctx context.Context, channel int, on, off uint16) error {
	err := p.transport.WriteToAddr(ctx, p.address, []byte{
		channelRegister(channel),
		byte(on), byte(on >> 8),
		byte(off), byte(off >> 8),
	})
	if err != nil {
		return fmt.Errorf("pca9685: could not write channel %d: %w", channel, err)
	}
	return nil
}

func (p *PCA9685) writeRegister(ctx context.Context, reg, value byte) error {
	return p.transport.WriteToAddr(ctx, p.address, []byte{reg, value})
}

func channelRegister(channel int) byte {
	return byte(regLEDBase + channel*regIncrement)
}

func checkChannel(channel int) error {
	if channel < 0 || channel >= Channels {
		return fmt.Errorf("pca9685: channel %d: %w", channel, fezhat.ErrOutOfRange)
	}
	return nil
}
