package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/fezhat"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var _ fezhat.I2CBus = &GenericBus{}

const DefaultTimeout = time.Second

type Config struct {
	Timeout time.Duration
}

type Option func(*Config)

// WithTimeout bounds every transaction on the bus. A hung transaction returns
// fezhat.ErrBusTimeout instead of blocking the caller.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

var openBus = func(dev string) (i2c.BusCloser, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	return i2creg.Open(dev)
}

var (
	sharedMx sync.Mutex
	shared   = map[string]*GenericBus{}
)

// GenericBus is an I2C bus backed by periph.io. All transactions are serialized.
type GenericBus struct {
	mx      sync.Mutex
	name    string
	bus     i2c.BusCloser
	timeout time.Duration
	refs    int
	closed  bool
}

// Acquire returns the process-wide handle for dev, opening the bus on first use.
// Every Acquire must be paired with Close; the bus is closed when the last holder closes it.
func Acquire(dev string, opts ...Option) (*GenericBus, error) {
	sharedMx.Lock()
	defer sharedMx.Unlock()
	if b, ok := shared[dev]; ok {
		b.refs++
		return b, nil
	}
	b, err := NewGenericBus(dev, opts...)
	if err != nil {
		return nil, err
	}
	b.refs = 1
	shared[dev] = b
	return b, nil
}

// NewGenericBus opens a private handle to dev. Prefer Acquire when several users share the bus.
func NewGenericBus(dev string, opts ...Option) (*GenericBus, error) {
	bus, err := openBus(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return newGenericBus(dev, bus, opts...), nil
}

func newGenericBus(name string, bus i2c.BusCloser, opts ...Option) *GenericBus {
	config := Config{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&config)
	}
	return &GenericBus{name: name, bus: bus, timeout: config.Timeout}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	err := b.tx(ctx, address, w, r)
	if err != nil {
		return fmt.Errorf("could not transfer on i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	// the transaction cannot be interrupted, it gets its own read buffer so a late
	// completion never touches the caller's memory
	var rb []byte
	if r != nil {
		rb = make([]byte, len(r))
	}
	done := make(chan error, 1)
	go func() {
		done <- b.bus.Tx(uint16(address), w, rb)
	}()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		copy(r, rb)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", fezhat.ErrBusTimeout, ctx.Err())
	}
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

// Close drops one reference to the bus and closes it when no holders remain.
// Closing a closed bus is a no-op.
func (b *GenericBus) Close() error {
	sharedMx.Lock()
	defer sharedMx.Unlock()
	if b.closed {
		return nil
	}
	if b.refs > 1 {
		b.refs--
		return nil
	}
	b.refs = 0
	b.closed = true
	if shared[b.name] == b {
		delete(shared, b.name)
	}
	return b.bus.Close()
}
