package i2c

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/fezhat"
)

func TestGenericBus_Tx(t *testing.T) {
	ctx := context.Background()
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x1C, W: []byte{0x2A, 0x01}},
			{Addr: 0x1C, W: []byte{0x01}, R: []byte{0x4B, 0x00, 0x96, 0x00, 0x40, 0x00}},
			{Addr: 0x48, R: []byte{0x7F}},
		},
	}
	b := newGenericBus("test", playback)

	require.NoError(t, b.WriteToAddr(ctx, 0x1C, []byte{0x2A, 0x01}))
	buf := make([]byte, 6)
	require.NoError(t, b.TxToAddr(ctx, 0x1C, []byte{0x01}, buf))
	assert.Equal(t, []byte{0x4B, 0x00, 0x96, 0x00, 0x40, 0x00}, buf)
	one := make([]byte, 1)
	require.NoError(t, b.ReadFromAddr(ctx, 0x48, one))
	assert.Equal(t, byte(0x7F), one[0])
	require.NoError(t, b.Close())
}

// stuckBus never completes a transaction until released.
type stuckBus struct {
	release chan struct{}
}

func (s *stuckBus) String() string { return "stuck" }

func (s *stuckBus) Tx(addr uint16, w, r []byte) error {
	<-s.release
	for i := range r {
		r[i] = 0xFF
	}
	return nil
}

func (s *stuckBus) SetSpeed(f physic.Frequency) error { return nil }

func (s *stuckBus) Close() error { return nil }

var _ i2c.BusCloser = &stuckBus{}

func TestGenericBus_Timeout(t *testing.T) {
	stuck := &stuckBus{release: make(chan struct{})}
	b := newGenericBus("stuck", stuck, WithTimeout(20*time.Millisecond))

	buf := []byte{0x00}
	start := time.Now()
	err := b.TxToAddr(context.Background(), 0x48, []byte{0x84}, buf)
	assert.ErrorIs(t, err, fezhat.ErrBusTimeout)
	assert.Less(t, time.Since(start), time.Second)

	close(stuck.release)
	time.Sleep(10 * time.Millisecond)
	// late completion does not touch the caller's buffer
	assert.Equal(t, byte(0x00), buf[0])
}

func TestGenericBus_ContextCanceled(t *testing.T) {
	stuck := &stuckBus{release: make(chan struct{})}
	defer close(stuck.release)
	b := newGenericBus("stuck", stuck)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.WriteToAddr(ctx, 0x40, []byte{0x00, 0x20})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenericBus_Error(t *testing.T) {
	playback := &i2ctest.Playback{DontPanic: true}
	b := newGenericBus("empty", playback)
	err := b.WriteToAddr(context.Background(), 0x40, []byte{0x00})
	assert.Error(t, err)
}

type countingBus struct {
	i2ctest.Playback
	closed int
}

func (c *countingBus) Close() error {
	c.closed++
	return nil
}

func TestAcquire_Shared(t *testing.T) {
	opened := map[string]*countingBus{}
	orig := openBus
	openBus = func(dev string) (i2c.BusCloser, error) {
		if dev == "missing" {
			return nil, errors.New("no such bus")
		}
		c := &countingBus{}
		opened[dev] = c
		return c, nil
	}
	defer func() { openBus = orig }()

	first, err := Acquire("I2C1")
	require.NoError(t, err)
	second, err := Acquire("I2C1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, opened, 1)

	require.NoError(t, first.Close())
	assert.Equal(t, 0, opened["I2C1"].closed)
	require.NoError(t, second.Close())
	assert.Equal(t, 1, opened["I2C1"].closed)
	require.NoError(t, second.Close())
	assert.Equal(t, 1, opened["I2C1"].closed)

	third, err := Acquire("I2C1")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	require.NoError(t, third.Close())

	_, err = Acquire("missing")
	assert.Error(t, err)
}

func TestGenericBus_CloseTwice(t *testing.T) {
	c := &countingBus{}
	b := newGenericBus("private", c)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, c.closed)
}
