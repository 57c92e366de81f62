package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/hatctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const (
	cmdStatus             = 0x10
	cmdGetI2CData         = 0x40
	cmdGetGPIO            = 0x51
	cmdI2CWrite           = 0x90
	cmdI2CRead            = 0x91
	cmdI2CReadRepeated    = 0x93
	cmdI2CWriteNoStop     = 0x94
	cmdReadFlash          = 0xB0
	cmdWriteFlash         = 0xB1
	subcmdCancelTransfer  = 0x10
	flashGPSettings       = 0x01
	responseBusy          = 0x01
	responseReadError     = 0x41
	frameSize             = 64
	maxPayload            = frameSize - 4
	defaultResponseWaitMS = 50
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

var _ fezhat.I2CBus = &MCP2221{}

// hidDevice is the part of hid.Device the adapter talks to.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221 is a Microchip MCP2221A USB to I2C bridge, used to drive the board
// from a development machine instead of a Raspberry Pi.
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/MCP2221A-Data-Sheet-20005565E.pdf
//
// The HID device is opened for each frame so the adapter can be unplugged between calls.
type MCP2221 struct {
	mx           sync.Mutex
	open         func(index int) (hidDevice, error)
	index        int
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type Option func(*MCP2221)

// WithDeviceIndex selects one adapter when several are plugged in.
func WithDeviceIndex(index int) Option {
	return func(d *MCP2221) {
		d.index = index
	}
}

func WithResponseWait(wait time.Duration) Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...Option) *MCP2221 {
	d := &MCP2221{
		open:         openHID,
		index:        -1,
		request:      make([]byte, frameSize),
		response:     make([]byte, frameSize),
		responseWait: defaultResponseWaitMS * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func openHID(index int) (hidDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d adapters found", len(devs))
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with index %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.write(ctx, cmdI2CWrite, address, buffer)
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.read(ctx, cmdI2CRead, address, buffer)
}

// TxToAddr writes w without a stop condition and reads r after a repeated start.
func (d *MCP2221) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if len(r) == 0 {
		return d.write(ctx, cmdI2CWrite, address, w)
	}
	if len(w) == 0 {
		return d.read(ctx, cmdI2CRead, address, r)
	}
	if err := d.write(ctx, cmdI2CWriteNoStop, address, w); err != nil {
		return err
	}
	return d.read(ctx, cmdI2CReadRepeated, address, r)
}

func (d *MCP2221) write(ctx context.Context, cmd, address byte, buffer []byte) error {
	if len(buffer) > maxPayload {
		return fmt.Errorf("mcp2221: write of %d bytes: %w", len(buffer), fezhat.ErrOutOfRange)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("mcp2221: write to %#x failed: %w", address, err)
	}
	if d.response[1] == responseBusy {
		slog.Debug("mcp2221 busy", "address", address)
		return fmt.Errorf("mcp2221: write to %#x: %w", address, fezhat.ErrBusBusy)
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd, address byte, buffer []byte) error {
	if len(buffer) > maxPayload {
		return fmt.Errorf("mcp2221: read of %d bytes: %w", len(buffer), fezhat.ErrOutOfRange)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 | 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("mcp2221: read from %#x failed: %w", address, err)
	}
	if d.response[1] == responseBusy {
		return fmt.Errorf("mcp2221: read from %#x: %w", address, fezhat.ErrBusBusy)
	}
	d.resetBuffers()
	d.request[0] = cmdGetI2CData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("mcp2221: error getting read data from adapter: %w", err)
	}
	if d.response[1] == responseReadError {
		return fmt.Errorf("mcp2221: error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("mcp2221: invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("mcp2221: status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	// 9-10 requested transfer length, 11-12 transferred length, 13 buffer counter,
	// 14 speed divider, 15 timeout, 16-17 address, 25 read pending
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

// Release cancels any transfer in progress and frees the I2C engine.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = subcmdCancelTransfer
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("mcp2221: cancel transfer failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// Close frees the I2C engine so the next user starts from a clean state.
func (d *MCP2221) Close() error {
	return d.Release(context.Background())
}

// send writes the request frame and reads the response into d.response.
func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.open(d.index)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("mcp2221 close error", "error", err)
		}
	}()
	verbose := hatctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "frame", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != frameSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.responseWait):
		}
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != frameSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "frame", hex.EncodeToString(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
