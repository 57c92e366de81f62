package i2c

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	gobotio "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/mklimuk/fezhat"
)

var _ fezhat.I2CBus = &GobotBus{}

// GobotBus talks to the bus through a gobot adaptor. Gobot has no combined
// transaction so TxToAddr is a write followed by a separate read.
type GobotBus struct {
	mx        sync.Mutex
	connector gobotio.Connector
	busNr     int
	conns     map[byte]gobotio.Connection
	finalize  func() error
}

func NewGobotBus(connector gobotio.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     map[byte]gobotio.Connection{},
	}
}

// NewRaspiBus connects the gobot Raspberry Pi adaptor and uses its I2C bus busNr.
func NewRaspiBus(busNr int) (*GobotBus, error) {
	adaptor := raspi.NewAdaptor()
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	b := NewGobotBus(adaptor, busNr)
	b.finalize = adaptor.Finalize
	return b, nil
}

func (b *GobotBus) connection(address byte) (gobotio.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not get connection to %x: %w", address, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.write(ctx, address, buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.read(ctx, address, buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.write(ctx, address, w); err != nil {
		return fmt.Errorf("could not transfer on i2c bus %x: %w", address, err)
	}
	if err := b.read(ctx, address, r); err != nil {
		return fmt.Errorf("could not transfer on i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) write(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Write(buffer)
	if err != nil {
		return err
	}
	if n != len(buffer) {
		return fmt.Errorf("short write: %d of %d", n, len(buffer))
	}
	return nil
}

func (b *GobotBus) read(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return err
	}
	if n != len(buffer) {
		return fmt.Errorf("short read: %d of %d", n, len(buffer))
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var err error
	for addr, conn := range b.conns {
		err = multierr.Append(err, conn.Close())
		delete(b.conns, addr)
	}
	if b.finalize != nil {
		err = multierr.Append(err, b.finalize())
	}
	return err
}
