// Package board composes the FEZ HAT chips and lines into motors, servos, LEDs
// and sensors.
package board

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"go.uber.org/multierr"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/accel"
	"github.com/mklimuk/fezhat/adc"
	"github.com/mklimuk/fezhat/environment"
	"github.com/mklimuk/fezhat/pwm"
)

type Options struct {
	Config      Config
	Logger      *slog.Logger
	Light       environment.LightSensor
	Temperature environment.TemperatureSensor
}

type Option func(*Options)

func WithConfig(config Config) Option {
	return func(o *Options) {
		o.Config = config
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithLightSensor replaces the on-board light sensor.
func WithLightSensor(sensor environment.LightSensor) Option {
	return func(o *Options) {
		o.Light = sensor
	}
}

// WithTemperatureSensor replaces the sensor selected by Config.TemperatureSensor.
func WithTemperatureSensor(sensor environment.TemperatureSensor) Option {
	return func(o *Options) {
		o.Temperature = sensor
	}
}

// Board is the FEZ HAT: a PCA9685 PWM controller, an ADS7830 ADC, an MMA8453
// accelerometer and a handful of lines wired directly to the host.
//
// The PWM frequency is shared by every channel. Calibrating a servo pins it to
// ServoFrequency and SetPwmFrequency fails with fezhat.ErrFrequencyConflict
// until the servo is disabled.
type Board struct {
	mx       sync.Mutex
	config   Config
	log      *slog.Logger
	bus      fezhat.I2CBus
	closeBus func() error
	closed   bool

	pwm           *pwm.PCA9685
	analog        *adc.ADS7830
	accelerometer *accel.MMA8453
	light         environment.LightSensor
	temperature   environment.TemperatureSensor

	lines       []fezhat.Line
	motorEnable fezhat.Line
	digital     map[DigitalPin]fezhat.Line
	dio24       fezhat.Line
	dio18       fezhat.Line
	dio22       fezhat.Line

	motorA *Motor
	motorB *Motor
	d2     *RgbLed
	d3     *RgbLed
	s1     *Servo
	s2     *Servo
}

// New brings up the board on an already open bus. The bus stays owned by the
// caller. Nothing is left open when New fails.
func New(ctx context.Context, bus fezhat.I2CBus, lines fezhat.LineOpener, opts ...Option) (*Board, error) {
	options := &Options{Config: DefaultConfig(), Logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.Config.Validate(); err != nil {
		return nil, fmt.Errorf("board: invalid config: %w", err)
	}
	b := &Board{
		config:      options.Config,
		log:         options.Logger,
		bus:         bus,
		light:       options.Light,
		temperature: options.Temperature,
		digital:     map[DigitalPin]fezhat.Line{},
	}
	if err := b.init(ctx, lines); err != nil {
		return nil, multierr.Append(fmt.Errorf("board: %w", err), b.release(ctx))
	}
	b.log.Info("board ready",
		"pwm", fmt.Sprintf("%#x", b.config.Strapping.PWM.Address()),
		"adc", fmt.Sprintf("%#x", adc.Address(b.config.Strapping.ADC.A0, b.config.Strapping.ADC.A1)),
		"accel", fmt.Sprintf("%#x", accel.Address(b.config.Strapping.Accel)),
		"frequency", b.config.PwmFrequency)
	return b, nil
}

func (b *Board) init(ctx context.Context, lines fezhat.LineOpener) error {
	cfg := b.config
	open := func(number int, mode fezhat.Mode) (fezhat.Line, error) {
		line, err := lines.OpenLine(number, mode)
		if err != nil {
			return nil, fmt.Errorf("could not open line %d: %w", number, err)
		}
		b.lines = append(b.lines, line)
		return line, nil
	}

	oe, err := open(cfg.Lines.PwmOutputEnable, fezhat.ModeOutput)
	if err != nil {
		return err
	}
	b.pwm, err = pwm.NewPCA9685(ctx, b.bus, cfg.Strapping.PWM.Address(), oe)
	if err != nil {
		return err
	}
	b.analog = adc.NewADS7830(b.bus, adc.Address(cfg.Strapping.ADC.A0, cfg.Strapping.ADC.A1))
	b.accelerometer, err = accel.NewMMA8453(ctx, b.bus, accel.Address(cfg.Strapping.Accel))
	if err != nil {
		return err
	}
	if b.light == nil {
		b.light = environment.NewAnalogLightSensor(b.analog, cfg.LightChannel)
	}
	if b.temperature == nil {
		switch cfg.TemperatureSensor {
		case SensorTC74:
			b.temperature = environment.NewTC74(b.bus, cfg.TC74Address)
		default:
			b.temperature = environment.NewMCP9701(b.analog, cfg.TempChannel)
		}
	}

	inputs := []struct {
		number int
		target *fezhat.Line
	}{
		{cfg.Lines.DIO18, &b.dio18},
		{cfg.Lines.DIO22, &b.dio22},
	}
	for _, in := range inputs {
		if *in.target, err = open(in.number, fezhat.ModeInput); err != nil {
			return err
		}
	}
	digital := map[DigitalPin]int{DIO16: cfg.Lines.DIO16, DIO26: cfg.Lines.DIO26}
	for _, pin := range DigitalPins {
		line, err := open(digital[pin], fezhat.ModeInput)
		if err != nil {
			return err
		}
		b.digital[pin] = line
	}
	if b.dio24, err = open(cfg.Lines.DIO24, fezhat.ModeOutput); err != nil {
		return err
	}
	if b.motorEnable, err = open(cfg.Lines.MotorEnable, fezhat.ModeOutput); err != nil {
		return err
	}
	motorLines := make([]fezhat.Line, 4)
	for i, number := range []int{cfg.MotorA.Direction1, cfg.MotorA.Direction2, cfg.MotorB.Direction1, cfg.MotorB.Direction2} {
		if motorLines[i], err = open(number, fezhat.ModeOutput); err != nil {
			return err
		}
	}

	if err = b.pwm.SetFrequency(ctx, cfg.PwmFrequency); err != nil {
		return err
	}
	if err = b.pwm.SetOutputEnabled(true); err != nil {
		return err
	}
	if err = b.motorEnable.Write(true); err != nil {
		return fmt.Errorf("could not enable motors: %w", err)
	}

	if b.motorA, err = newMotor(ctx, "A", b.pwm, cfg.MotorA.Channel, motorLines[0], motorLines[1]); err != nil {
		return err
	}
	if b.motorB, err = newMotor(ctx, "B", b.pwm, cfg.MotorB.Channel, motorLines[2], motorLines[3]); err != nil {
		return err
	}
	b.d2 = newRgbLed("D2", b.pwm, cfg.D2)
	b.d3 = newRgbLed("D3", b.pwm, cfg.D3)
	b.s1 = newServo("S1", b.pwm, cfg.S1)
	b.s2 = newServo("S2", b.pwm, cfg.S2)
	return nil
}

// release shuts down whatever init managed to bring up.
func (b *Board) release(ctx context.Context) error {
	var err error
	if b.motorEnable != nil {
		err = multierr.Append(err, b.motorEnable.Write(false))
	}
	if b.pwm != nil {
		err = multierr.Append(err, b.pwm.Close(ctx))
	}
	if b.analog != nil {
		err = multierr.Append(err, b.analog.Close())
	}
	if b.accelerometer != nil {
		err = multierr.Append(err, b.accelerometer.Close())
	}
	for _, line := range b.lines {
		err = multierr.Append(err, line.Close())
	}
	b.lines = nil
	return err
}

// Close stops the motors, disables the PWM outputs, releases every line and,
// when the board was created with Open, the bus. Calling Close twice is a no-op.
func (b *Board) Close(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := multierr.Combine(b.motorA.Stop(ctx), b.motorB.Stop(ctx))
	err = multierr.Append(err, b.release(ctx))
	if b.closeBus != nil {
		err = multierr.Append(err, b.closeBus())
	}
	if err != nil {
		b.log.Warn("board closed with errors", "error", err)
		return fmt.Errorf("board: close: %w", err)
	}
	b.log.Debug("board closed")
	return nil
}

func (b *Board) check() error {
	if b.closed {
		return fmt.Errorf("board: %w", fezhat.ErrReleased)
	}
	return nil
}

func (b *Board) Config() Config {
	return b.config
}

func (b *Board) MotorA() *Motor {
	return b.motorA
}

func (b *Board) MotorB() *Motor {
	return b.motorB
}

func (b *Board) D2() *RgbLed {
	return b.d2
}

func (b *Board) D3() *RgbLed {
	return b.d3
}

func (b *Board) S1() *Servo {
	return b.s1
}

func (b *Board) S2() *Servo {
	return b.s2
}

// SetPwmDutyCycle drives one of the PWM pins on the header.
func (b *Board) SetPwmDutyCycle(ctx context.Context, pin PwmPin, value float64) error {
	if math.IsNaN(value) || value < 0 || value > 1 {
		return fmt.Errorf("board: duty cycle %v: %w", value, fezhat.ErrOutOfRange)
	}
	if !pin.Valid() {
		return fmt.Errorf("board: %s: %w", pin, fezhat.ErrOutOfRange)
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	return b.pwm.SetDutyCycle(ctx, int(pin), value)
}

// WriteDigital switches the pin to output first if it is an input.
func (b *Board) WriteDigital(pin DigitalPin, state bool) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	line, err := b.digitalLine(pin, fezhat.ModeOutput)
	if err != nil {
		return err
	}
	if err = line.Write(state); err != nil {
		return fmt.Errorf("board: %s: %w", pin, err)
	}
	return nil
}

// ReadDigital switches the pin to input first if it is an output.
func (b *Board) ReadDigital(pin DigitalPin) (bool, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	line, err := b.digitalLine(pin, fezhat.ModeInput)
	if err != nil {
		return false, err
	}
	v, err := line.Read()
	if err != nil {
		return false, fmt.Errorf("board: %s: %w", pin, err)
	}
	return v, nil
}

func (b *Board) digitalLine(pin DigitalPin, mode fezhat.Mode) (fezhat.Line, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	line, ok := b.digital[pin]
	if !ok {
		return nil, fmt.Errorf("board: %s: %w", pin, fezhat.ErrOutOfRange)
	}
	if line.Mode() != mode {
		b.log.Debug("switching line mode", "pin", pin.String(), "mode", mode.String())
		if err := line.SetMode(mode); err != nil {
			return nil, fmt.Errorf("board: %s: could not switch to %s: %w", pin, mode, err)
		}
	}
	return line, nil
}

// ReadAnalog returns the pin voltage as a fraction of 3.3V.
func (b *Board) ReadAnalog(ctx context.Context, pin AnalogPin) (float64, error) {
	if !pin.Valid() {
		return 0, fmt.Errorf("board: %s: %w", pin, fezhat.ErrOutOfRange)
	}
	if err := b.guard(); err != nil {
		return 0, err
	}
	return b.analog.Read(ctx, int(pin))
}

func (b *Board) LightLevel(ctx context.Context) (float64, error) {
	if err := b.guard(); err != nil {
		return 0, err
	}
	return b.light.GetLightLevel(ctx)
}

// Temperature in degrees Celsius.
func (b *Board) Temperature(ctx context.Context) (float64, error) {
	if err := b.guard(); err != nil {
		return 0, err
	}
	return b.temperature.GetTemperature(ctx)
}

// Acceleration in g for each axis.
func (b *Board) Acceleration(ctx context.Context) (x, y, z float64, err error) {
	if err = b.guard(); err != nil {
		return 0, 0, 0, err
	}
	return b.accelerometer.GetAcceleration(ctx)
}

func (b *Board) IsDIO18Pressed() (bool, error) {
	return b.pressed(b.dio18)
}

func (b *Board) IsDIO22Pressed() (bool, error) {
	return b.pressed(b.dio22)
}

// buttons pull the line low
func (b *Board) pressed(line fezhat.Line) (bool, error) {
	if err := b.guard(); err != nil {
		return false, err
	}
	v, err := line.Read()
	if err != nil {
		return false, fmt.Errorf("board: could not read button: %w", err)
	}
	return !v, nil
}

// DIO24On reports the state of the on-board DIO24 LED.
func (b *Board) DIO24On() (bool, error) {
	if err := b.guard(); err != nil {
		return false, err
	}
	return b.dio24.Read()
}

func (b *Board) SetDIO24On(on bool) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.dio24.Write(on)
}

// PwmFrequency returns the frequency shared by all PWM channels.
func (b *Board) PwmFrequency() int {
	return b.pwm.Frequency()
}

// SetPwmFrequency changes the frequency of every channel, including motors and LEDs.
func (b *Board) SetPwmFrequency(ctx context.Context, hz int) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.pwm.SetFrequency(ctx, hz)
}

func (b *Board) guard() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.check()
}
