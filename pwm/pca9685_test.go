package pwm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/gpio"
	"github.com/mklimuk/fezhat/i2c/bustest"
)

// registerFile emulates the chip register space with auto-increment.
type registerFile struct {
	mx   sync.Mutex
	regs [256]byte
	ops  int
}

func (r *registerFile) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.ops++
	if len(buffer) == 0 {
		return nil
	}
	reg := buffer[0]
	for i, b := range buffer[1:] {
		r.regs[reg+byte(i)] = b
	}
	return nil
}

func (r *registerFile) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return fmt.Errorf("register pointer not set")
}

func (r *registerFile) TxToAddr(ctx context.Context, address byte, w, rd []byte) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.ops++
	for i := range rd {
		rd[i] = r.regs[w[0]+byte(i)]
	}
	return nil
}

func (r *registerFile) Release(ctx context.Context) error {
	return nil
}

func newTestController(t *testing.T, bus fezhat.I2CBus) (*PCA9685, *gpio.MockLine) {
	t.Helper()
	oe := gpio.NewMockLine(13, fezhat.ModeOutput)
	p, err := NewPCA9685(context.Background(), bus, DefaultAddress, oe)
	require.NoError(t, err)
	return p, oe
}

func TestAddress(t *testing.T) {
	assert.Equal(t, byte(0x40), Address(false, false, false, false, false, false))
	assert.Equal(t, byte(0x41), Address(true, false, false, false, false, false))
	assert.Equal(t, byte(0x60), Address(false, false, false, false, false, true))
	assert.Equal(t, byte(0x7F), Address(true, true, true, true, true, true))
}

func TestPrescaleFor(t *testing.T) {
	tests := []struct {
		hz       int
		expected byte
	}{
		{10, 255},
		{24, 253},
		{50, 121},
		{60, 101},
		{100, 60},
		{200, 30},
		{1000, 5},
		{1500, 3},
		{5000, 3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%dHz", test.hz), func(t *testing.T) {
			assert.Equal(t, test.expected, PrescaleFor(test.hz))
		})
	}
}

func TestSetFrequency_Readback(t *testing.T) {
	ctx := context.Background()
	regs := &registerFile{}
	p, _ := newTestController(t, regs)
	for hz := 24; hz <= 1526; hz++ {
		require.NoError(t, p.SetFrequency(ctx, hz))
		expected := math.Round(OscillatorHz/(Resolution*float64(hz))) - 1
		expected = math.Max(MinPrescale, math.Min(MaxPrescale, expected))
		assert.Equal(t, byte(expected), p.Prescale(), "%d Hz", hz)
		assert.Equal(t, byte(expected), regs.regs[regPrescale], "%d Hz", hz)
		assert.Equal(t, hz, p.Frequency())
	}
}

func TestSetFrequency_Sequence(t *testing.T) {
	bus := &bustest.Recorder{}
	p, _ := newTestController(t, bus)
	bus.Reset()

	require.NoError(t, p.SetFrequency(context.Background(), 50))

	assert.Equal(t, []bustest.Write{
		{Address: DefaultAddress, Data: []byte{regMode1, mode1AutoIncrement | mode1Sleep}},
		{Address: DefaultAddress, Data: []byte{regPrescale, 121}},
		{Address: DefaultAddress, Data: []byte{regMode1, mode1AutoIncrement}},
		{Address: DefaultAddress, Data: []byte{regMode1, mode1AutoIncrement | mode1Restart}},
	}, bus.Writes(DefaultAddress))
	assert.InDelta(t, 50.0, p.ActualFrequency(), 0.5)
}

func TestSetFrequency_Invalid(t *testing.T) {
	bus := &bustest.Recorder{}
	p, _ := newTestController(t, bus)
	bus.Reset()

	for _, hz := range []int{0, -50} {
		err := p.SetFrequency(context.Background(), hz)
		assert.ErrorIs(t, err, fezhat.ErrOutOfRange)
	}
	assert.Empty(t, bus.Writes(0))
}

func TestSetFrequency_RestoreFailure(t *testing.T) {
	ctx := context.Background()
	bus := new(bustest.MockBus)
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{regMode1, mode1AutoIncrement}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{regMode2, mode2OutDrv}).Return(nil).Once()
	p, _ := newTestController(t, bus)

	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{regMode1, mode1AutoIncrement | mode1Sleep}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{regPrescale, byte(121)}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{regMode1, mode1AutoIncrement}).Return(busErr).Once()

	err := p.SetFrequency(ctx, 50)
	assert.ErrorIs(t, err, fezhat.ErrDriverFault)
	assert.ErrorIs(t, err, busErr)
	assert.Equal(t, 0, p.Frequency())
	bus.AssertExpectations(t)
}

func TestSetFrequency_SleepFailure(t *testing.T) {
	ctx := context.Background()
	bus := new(bustest.MockBus)
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil).Twice()
	p, _ := newTestController(t, bus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(busErr).Once()

	err := p.SetFrequency(ctx, 50)
	assert.ErrorIs(t, err, busErr)
	assert.NotErrorIs(t, err, fezhat.ErrDriverFault)
	assert.Equal(t, 0, p.Frequency())
}

func TestSetDutyCycle_Readback(t *testing.T) {
	ctx := context.Background()
	regs := &registerFile{}
	p, _ := newTestController(t, regs)
	values := []float64{0.0001, 0.1, 0.25, 0.333, 0.5, 0.75, 0.9999, 1.0}
	for channel := 0; channel < Channels; channel++ {
		for _, v := range values {
			require.NoError(t, p.SetDutyCycle(ctx, channel, v))
			on, off, fullOff, err := p.Channel(ctx, channel)
			require.NoError(t, err)
			assert.Equal(t, uint16(0), on)
			assert.Equal(t, uint16(math.Round(v*4095)), off, "channel %d value %v", channel, v)
			assert.False(t, fullOff)
		}
		require.NoError(t, p.SetDutyCycle(ctx, channel, 0))
		on, off, fullOff, err := p.Channel(ctx, channel)
		require.NoError(t, err)
		assert.Equal(t, uint16(0), on)
		assert.Equal(t, uint16(0), off)
		assert.True(t, fullOff, "channel %d", channel)
	}
}

func TestSetDutyCycle_SingleTransaction(t *testing.T) {
	bus := &bustest.Recorder{}
	p, _ := newTestController(t, bus)
	bus.Reset()

	require.NoError(t, p.SetDutyCycle(context.Background(), 14, 0.5))
	require.NoError(t, p.SetDutyCycle(context.Background(), 14, 0))

	assert.Equal(t, []bustest.Write{
		{Address: DefaultAddress, Data: []byte{0x06 + 14*4, 0x00, 0x00, 0x00, 0x08}},
		{Address: DefaultAddress, Data: []byte{0x06 + 14*4, 0x00, 0x00, 0x00, 0x10}},
	}, bus.Writes(0))
}

func TestSetDutyCycle_Range(t *testing.T) {
	tests := []struct {
		name    string
		channel int
		value   float64
	}{
		{"negative channel", -1, 0.5},
		{"channel too high", 16, 0.5},
		{"negative value", 0, -0.01},
		{"value too high", 0, 1.01},
		{"nan", 0, math.NaN()},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := &bustest.Recorder{}
			p, _ := newTestController(t, bus)
			bus.Reset()
			err := p.SetDutyCycle(context.Background(), test.channel, test.value)
			assert.ErrorIs(t, err, fezhat.ErrOutOfRange)
			assert.Empty(t, bus.Writes(0))
		})
	}
}

func TestSetChannel(t *testing.T) {
	ctx := context.Background()
	regs := &registerFile{}
	p, _ := newTestController(t, regs)

	require.NoError(t, p.SetChannel(ctx, 9, 0, 307))
	on, off, fullOff, err := p.Channel(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), on)
	assert.Equal(t, uint16(307), off)
	assert.False(t, fullOff)

	ops := regs.ops
	assert.ErrorIs(t, p.SetChannel(ctx, 9, 0, 4096), fezhat.ErrOutOfRange)
	assert.ErrorIs(t, p.SetChannel(ctx, 16, 0, 100), fezhat.ErrOutOfRange)
	_, _, _, err = p.Channel(ctx, -1)
	assert.ErrorIs(t, err, fezhat.ErrOutOfRange)
	assert.Equal(t, ops, regs.ops)
}

func TestTransportError(t *testing.T) {
	ctx := context.Background()
	bus := new(bustest.MockBus)
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil).Twice()
	p, _ := newTestController(t, bus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(busErr).Once()

	err := p.SetDutyCycle(ctx, 3, 0.5)
	assert.ErrorIs(t, err, busErr)
	bus.AssertExpectations(t)
}

func TestOutputEnable(t *testing.T) {
	p, oe := newTestController(t, &bustest.Recorder{})
	assert.True(t, oe.Level(), "outputs start disabled")
	assert.False(t, p.OutputEnabled())

	require.NoError(t, p.SetOutputEnabled(true))
	assert.False(t, oe.Level())
	assert.True(t, p.OutputEnabled())

	require.NoError(t, p.SetOutputEnabled(false))
	assert.True(t, oe.Level())
}

func TestReserveFrequency(t *testing.T) {
	ctx := context.Background()
	bus := &bustest.Recorder{}
	p, _ := newTestController(t, bus)
	require.NoError(t, p.SetFrequency(ctx, 1500))

	require.NoError(t, p.ReserveFrequency(ctx, "servo S1", 50))
	assert.Equal(t, 50, p.Frequency())

	// same frequency, no chip access
	bus.Reset()
	require.NoError(t, p.ReserveFrequency(ctx, "servo S2", 50))
	assert.Empty(t, bus.Writes(0))

	err := p.SetFrequency(ctx, 1500)
	assert.ErrorIs(t, err, fezhat.ErrFrequencyConflict)
	err = p.ReserveFrequency(ctx, "servo S1", 60)
	assert.ErrorIs(t, err, fezhat.ErrFrequencyConflict)
	assert.Equal(t, 50, p.Frequency())

	// setting the reserved value is not a conflict
	require.NoError(t, p.SetFrequency(ctx, 50))

	p.ReleaseFrequency("servo S2")
	require.NoError(t, p.ReserveFrequency(ctx, "servo S1", 60))
	assert.Equal(t, 60, p.Frequency())

	p.ReleaseFrequency("servo S1")
	require.NoError(t, p.SetFrequency(ctx, 1500))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	bus := &bustest.Recorder{}
	p, oe := newTestController(t, bus)
	require.NoError(t, p.SetOutputEnabled(true))

	require.NoError(t, p.Close(ctx))
	assert.True(t, oe.Level())
	last, ok := bus.Last(DefaultAddress, regMode1)
	require.True(t, ok)
	assert.Equal(t, []byte{regMode1, mode1AutoIncrement | mode1Sleep}, last)

	assert.ErrorIs(t, p.SetDutyCycle(ctx, 0, 0.5), fezhat.ErrReleased)
	assert.ErrorIs(t, p.SetFrequency(ctx, 50), fezhat.ErrReleased)
	assert.ErrorIs(t, p.SetOutputEnabled(true), fezhat.ErrReleased)
	require.NoError(t, p.Close(ctx))
}
