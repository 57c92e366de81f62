package board

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/adc"
	"github.com/mklimuk/fezhat/environment"
	"github.com/mklimuk/fezhat/gpio"
	"github.com/mklimuk/fezhat/i2c/bustest"
)

const (
	pwmAddr   = 0x7F
	adcAddr   = 0x48
	accelAddr = 0x1C
)

// fixture is a board wired to a recording bus and in-memory lines.
type fixture struct {
	bus   *bustest.Recorder
	lines *gpio.MockLines
	adc   map[int]byte
	accel []byte
}

func newFixture() *fixture {
	f := &fixture{
		bus:   &bustest.Recorder{},
		lines: gpio.NewMockLines(),
		adc:   map[int]byte{},
	}
	f.bus.Respond = func(address byte, w, r []byte) error {
		switch address {
		case adcAddr:
			for ch := 0; ch < adc.Channels; ch++ {
				if adc.Command(ch) == w[0] {
					r[0] = f.adc[ch]
				}
			}
		case accelAddr:
			copy(r, f.accel)
		}
		return nil
	}
	return f
}

func (f *fixture) open(t *testing.T, opts ...Option) *Board {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	b, err := New(context.Background(), f.bus, f.lines, opts...)
	require.NoError(t, err)
	return b
}

// channel returns the last LED register write of a PWM channel.
func (f *fixture) channel(t *testing.T, ch int) (on, off uint16) {
	t.Helper()
	data, ok := f.bus.Last(pwmAddr, byte(0x06+4*ch))
	require.True(t, ok, "channel %d never written", ch)
	require.Len(t, data, 5)
	return uint16(data[1]) | uint16(data[2])<<8, uint16(data[3]) | uint16(data[4])<<8
}

const fullOff = 0x1000

func TestNew(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	outputs := []int{13, 12, 24, 27, 23, 6, 5}
	inputs := []int{16, 26, 18, 22}
	for _, n := range outputs {
		require.NotNil(t, f.lines.Line(n), "line %d", n)
		assert.Equal(t, fezhat.ModeOutput, f.lines.Line(n).Mode(), "line %d", n)
	}
	for _, n := range inputs {
		require.NotNil(t, f.lines.Line(n), "line %d", n)
		assert.Equal(t, fezhat.ModeInput, f.lines.Line(n).Mode(), "line %d", n)
	}
	// output enable is active low
	assert.False(t, f.lines.Line(13).Level())
	assert.True(t, f.lines.Line(12).Level())

	setup, ok := f.bus.Last(accelAddr, 0x2A)
	require.True(t, ok)
	assert.Equal(t, []byte{0x2A, 0x01}, setup)
	prescale, ok := f.bus.Last(pwmAddr, 0xFE)
	require.True(t, ok)
	assert.Equal(t, []byte{0xFE, 3}, prescale)
	assert.Equal(t, DefaultPwmFrequency, b.PwmFrequency())

	// motors start stopped, direction line 2 active
	assert.False(t, f.lines.Line(27).Level())
	assert.True(t, f.lines.Line(23).Level())
	_, off := f.channel(t, 14)
	assert.Equal(t, uint16(fullOff), off)
	_, off = f.channel(t, 13)
	assert.Equal(t, uint16(fullOff), off)

	assert.Equal(t, "A", b.MotorA().Name())
	assert.Equal(t, "B", b.MotorB().Name())
	assert.Equal(t, "D2", b.D2().Name())
	assert.Equal(t, "D3", b.D3().Name())
	assert.Equal(t, "S1", b.S1().Name())
	assert.Equal(t, "S2", b.S2().Name())
}

func TestNew_Failures(t *testing.T) {
	busErr := errors.New("nack")
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"line open", func(f *fixture) {
			f.lines.FailOpen = map[int]error{24: busErr}
		}},
		{"direction line open", func(f *fixture) {
			f.lines.FailOpen = map[int]error{5: busErr}
		}},
		{"accelerometer", func(f *fixture) {
			f.bus.Fail = func(address byte, w []byte) error {
				if address == accelAddr {
					return busErr
				}
				return nil
			}
		}},
		{"pwm", func(f *fixture) {
			f.bus.Fail = func(address byte, w []byte) error {
				if address == pwmAddr && w[0] == 0xFE {
					return busErr
				}
				return nil
			}
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture()
			test.setup(f)
			b, err := New(context.Background(), f.bus, f.lines)
			assert.ErrorIs(t, err, busErr)
			assert.Nil(t, b)
			require.NotEmpty(t, f.lines.All())
			for _, l := range f.lines.All() {
				assert.True(t, l.Closed(), "line %d left open", l.Number())
			}
			if enable := f.lines.Line(12); enable != nil {
				assert.False(t, enable.Level())
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	f := newFixture()
	cfg := DefaultConfig()
	cfg.S1 = cfg.D2.Red
	_, err := New(context.Background(), f.bus, f.lines, WithConfig(cfg))
	assert.Error(t, err)
	assert.Empty(t, f.lines.All())
	assert.Empty(t, f.bus.Writes(0))
}

func TestNew_Strapping(t *testing.T) {
	f := newFixture()
	cfg := DefaultConfig()
	cfg.Strapping.PWM = PwmStrapping{}
	cfg.Strapping.Accel = true
	f.open(t, WithConfig(cfg))
	assert.NotEmpty(t, f.bus.Writes(0x40))
	assert.NotEmpty(t, f.bus.Writes(0x1D))
	assert.Empty(t, f.bus.Writes(pwmAddr))
}

func TestBoard_SetPwmDutyCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.open(t)

	for _, pin := range PwmPins {
		require.NoError(t, b.SetPwmDutyCycle(ctx, pin, 1))
		_, off := f.channel(t, int(pin))
		assert.Equal(t, uint16(4095), off, pin.String())
	}
	require.NoError(t, b.SetPwmDutyCycle(ctx, Pwm7, 0.25))
	_, off := f.channel(t, 7)
	assert.Equal(t, uint16(1024), off)

	assert.ErrorIs(t, b.SetPwmDutyCycle(ctx, PwmPin(4), 0.5), fezhat.ErrOutOfRange)
	assert.ErrorIs(t, b.SetPwmDutyCycle(ctx, Pwm5, 1.5), fezhat.ErrOutOfRange)
	assert.ErrorIs(t, b.SetPwmDutyCycle(ctx, Pwm5, -0.1), fezhat.ErrOutOfRange)
}

func TestBoard_Digital(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	f.lines.Line(16).SetLevel(true)
	v, err := b.ReadDigital(DIO16)
	require.NoError(t, err)
	assert.True(t, v)

	// writing switches the line to output
	require.NoError(t, b.WriteDigital(DIO26, true))
	assert.Equal(t, fezhat.ModeOutput, f.lines.Line(26).Mode())
	assert.Equal(t, []bool{true}, f.lines.Line(26).Writes())

	// and reading switches it back
	f.lines.Line(26).SetLevel(false)
	v, err = b.ReadDigital(DIO26)
	require.NoError(t, err)
	assert.False(t, v)
	assert.Equal(t, fezhat.ModeInput, f.lines.Line(26).Mode())

	_, err = b.ReadDigital(DigitalPin(7))
	assert.ErrorIs(t, err, fezhat.ErrOutOfRange)
	assert.ErrorIs(t, b.WriteDigital(DigitalPin(-1), true), fezhat.ErrOutOfRange)
}

func TestBoard_Analog(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.open(t)
	f.adc[1] = 0xFF
	f.adc[6] = 0x00
	f.adc[7] = 51

	v, err := b.ReadAnalog(ctx, Ain1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	v, err = b.ReadAnalog(ctx, Ain6)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
	v, err = b.ReadAnalog(ctx, Ain7)
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)

	// on-board sensor channels are not on the header
	_, err = b.ReadAnalog(ctx, AnalogPin(4))
	assert.ErrorIs(t, err, fezhat.ErrOutOfRange)
	_, err = b.ReadAnalog(ctx, AnalogPin(5))
	assert.ErrorIs(t, err, fezhat.ErrOutOfRange)
}

func TestBoard_Sensors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.open(t)
	f.adc[5] = 0xCC
	f.adc[4] = 64
	f.accel = []byte{0x4B, 0x00, 0x96, 0x00, 0x40, 0x00}

	light, err := b.LightLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0xCC/255.0, light)

	temp, err := b.Temperature(ctx)
	require.NoError(t, err)
	assert.InDelta(t, (64/255.0*3300-450)/19.5, temp, 1e-9)

	x, y, z, err := b.Acceleration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.171875, x)
	assert.Equal(t, -1.65625, y)
	assert.Equal(t, 1.0, z)
}

func TestBoard_SensorOverrides(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.open(t,
		WithLightSensor(environment.NewMockLightSensor(func(ctx context.Context) (float64, error) {
			return 0.42, nil
		})),
		WithTemperatureSensor(environment.NewMockTemperatureSensor(func(ctx context.Context) (float64, error) {
			return 21.5, nil
		})),
	)
	light, err := b.LightLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.42, light)
	temp, err := b.Temperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp)
}

func TestBoard_TC74(t *testing.T) {
	f := newFixture()
	respond := f.bus.Respond
	f.bus.Respond = func(address byte, w, r []byte) error {
		if address == 0x4D {
			if w[0] == 0x01 {
				r[0] = 0x40
			} else {
				r[0] = 0x17
			}
			return nil
		}
		return respond(address, w, r)
	}
	cfg := DefaultConfig()
	cfg.TemperatureSensor = SensorTC74
	b := f.open(t, WithConfig(cfg))
	temp, err := b.Temperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23.0, temp)
}

func TestBoard_Buttons(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	f.lines.Line(18).SetLevel(true)
	f.lines.Line(22).SetLevel(false)
	pressed, err := b.IsDIO18Pressed()
	require.NoError(t, err)
	assert.False(t, pressed)
	pressed, err = b.IsDIO22Pressed()
	require.NoError(t, err)
	assert.True(t, pressed)

	f.lines.Line(18).Fail(errors.New("gpio"))
	_, err = b.IsDIO18Pressed()
	assert.Error(t, err)
}

func TestBoard_DIO24(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	require.NoError(t, b.SetDIO24On(true))
	on, err := b.DIO24On()
	require.NoError(t, err)
	assert.True(t, on)
	require.NoError(t, b.SetDIO24On(false))
	assert.Equal(t, []bool{true, false}, f.lines.Line(24).Writes())
}

func TestBoard_SetPwmFrequency(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.open(t)

	require.NoError(t, b.SetPwmFrequency(ctx, 200))
	assert.Equal(t, 200, b.PwmFrequency())
	assert.ErrorIs(t, b.SetPwmFrequency(ctx, 0), fezhat.ErrOutOfRange)
}

func TestBoard_Close(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.open(t)
	require.NoError(t, b.MotorA().SetSpeed(ctx, 0.8))

	require.NoError(t, b.Close(ctx))
	_, off := f.channel(t, 14)
	assert.Equal(t, uint16(fullOff), off)
	assert.True(t, f.lines.Line(13).Level())
	assert.False(t, f.lines.Line(12).Level())
	for _, l := range f.lines.All() {
		assert.True(t, l.Closed(), "line %d left open", l.Number())
	}
	mode1, ok := f.bus.Last(pwmAddr, 0x00)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x30}, mode1)

	assert.NoError(t, b.Close(ctx))
	_, err := b.LightLevel(ctx)
	assert.ErrorIs(t, err, fezhat.ErrReleased)
	_, err = b.ReadDigital(DIO16)
	assert.ErrorIs(t, err, fezhat.ErrReleased)
	assert.ErrorIs(t, b.SetPwmDutyCycle(ctx, Pwm5, 0.5), fezhat.ErrReleased)
	assert.ErrorIs(t, b.MotorB().SetSpeed(ctx, 0.5), fezhat.ErrReleased)
}

func TestBoard_CloseBus(t *testing.T) {
	f := newFixture()
	b := f.open(t)
	closed := 0
	b.closeBus = func() error {
		closed++
		return nil
	}
	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 1, closed)
}
