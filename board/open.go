package board

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/adapter"
	"github.com/mklimuk/fezhat/gpio"
	"github.com/mklimuk/fezhat/i2c"
)

type closingBus interface {
	fezhat.I2CBus
	io.Closer
}

// Open connects to the bus selected by the config transport, opens the host GPIO
// lines and brings up the board. The bus is released by Board.Close.
func Open(ctx context.Context, opts ...Option) (*Board, error) {
	options := &Options{Config: DefaultConfig()}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.Config
	bus, err := openTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	slog.Debug("bus open", "transport", cfg.Transport, "bus", cfg.Bus)
	b, err := New(ctx, bus, gpio.NewHostLines(), opts...)
	if err != nil {
		return nil, multierr.Append(err, bus.Close())
	}
	b.closeBus = bus.Close
	return b, nil
}

func openTransport(cfg Config) (closingBus, error) {
	switch cfg.Transport {
	case TransportGobot:
		return i2c.NewRaspiBus(cfg.GobotBus)
	case TransportMCP2221:
		return adapter.NewMCP2221(), nil
	case TransportPeriph, "":
		return i2c.Acquire(cfg.Bus, i2c.WithTimeout(cfg.Timeout))
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
