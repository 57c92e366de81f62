// Package bustest provides bus doubles for driver tests.
package bustest

import (
	"bytes"
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/mklimuk/fezhat"
)

var _ fezhat.I2CBus = &MockBus{}
var _ fezhat.I2CBus = &Recorder{}

// MockBus is a testify mock of fezhat.I2CBus. Read methods copy the first
// return value into the read buffer when it is a []byte.
type MockBus struct {
	mock.Mock
}

func (m *MockBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	args := m.Called(ctx, address, w, r)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(r) {
		copy(r, data)
	}
	return args.Error(1)
}

func (m *MockBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Write is one recorded write (or the write half of a transaction).
type Write struct {
	Address byte
	Data    []byte
}

// Recorder records every write and answers reads with Respond.
type Recorder struct {
	mx     sync.Mutex
	writes []Write

	// Respond fills r for a transaction that wrote w. Nil leaves r zeroed.
	Respond func(address byte, w, r []byte) error
	// Fail, when set, is consulted before every operation.
	Fail func(address byte, w []byte) error
}

func (b *Recorder) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.Fail != nil {
		if err := b.Fail(address, buffer); err != nil {
			return err
		}
	}
	b.writes = append(b.writes, Write{Address: address, Data: bytes.Clone(buffer)})
	return nil
}

func (b *Recorder) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.TxToAddr(ctx, address, nil, buffer)
}

func (b *Recorder) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.Fail != nil {
		if err := b.Fail(address, w); err != nil {
			return err
		}
	}
	if len(w) > 0 {
		b.writes = append(b.writes, Write{Address: address, Data: bytes.Clone(w)})
	}
	if b.Respond != nil {
		return b.Respond(address, w, r)
	}
	return nil
}

func (b *Recorder) Release(ctx context.Context) error {
	return nil
}

// Writes returns the writes sent to address, all writes if address is 0.
func (b *Recorder) Writes(address byte) []Write {
	b.mx.Lock()
	defer b.mx.Unlock()
	var res []Write
	for _, w := range b.writes {
		if address == 0 || w.Address == address {
			res = append(res, w)
		}
	}
	return res
}

// Last returns the last write sent to address starting with register reg.
func (b *Recorder) Last(address, reg byte) ([]byte, bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	for i := len(b.writes) - 1; i >= 0; i-- {
		w := b.writes[i]
		if w.Address == address && len(w.Data) > 0 && w.Data[0] == reg {
			return w.Data, true
		}
	}
	return nil, false
}

func (b *Recorder) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.writes = nil
}
