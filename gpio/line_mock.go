package gpio

import (
	"fmt"
	"sync"

	"github.com/mklimuk/fezhat"
)

var _ fezhat.LineOpener = &MockLines{}
var _ fezhat.Line = &MockLine{}

// MockLine is an in-memory line that requires no hardware. Input lines report
// Level, which tests set with SetLevel.
type MockLine struct {
	mx      sync.Mutex
	number  int
	mode    fezhat.Mode
	level   bool
	writes  []bool
	closed  bool
	onWrite func(number int, value bool)
	fail    error
}

func NewMockLine(number int, mode fezhat.Mode) *MockLine {
	return &MockLine{number: number, mode: mode}
}

func (l *MockLine) Number() int {
	return l.number
}

func (l *MockLine) Mode() fezhat.Mode {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.mode
}

func (l *MockLine) SetMode(mode fezhat.Mode) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.closed {
		return fmt.Errorf("mock line %d: %w", l.number, fezhat.ErrReleased)
	}
	l.mode = mode
	return nil
}

func (l *MockLine) Read() (bool, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.closed {
		return false, fmt.Errorf("mock line %d: %w", l.number, fezhat.ErrReleased)
	}
	if l.fail != nil {
		return false, l.fail
	}
	return l.level, nil
}

func (l *MockLine) Write(value bool) error {
	l.mx.Lock()
	if l.closed {
		l.mx.Unlock()
		return fmt.Errorf("mock line %d: %w", l.number, fezhat.ErrReleased)
	}
	if l.fail != nil {
		l.mx.Unlock()
		return l.fail
	}
	if l.mode != fezhat.ModeOutput {
		l.mx.Unlock()
		return fmt.Errorf("mock line %d: write on input line: %w", l.number, fezhat.ErrOutOfRange)
	}
	l.level = value
	l.writes = append(l.writes, value)
	hook := l.onWrite
	l.mx.Unlock()
	if hook != nil {
		hook(l.number, value)
	}
	return nil
}

func (l *MockLine) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.closed = true
	return nil
}

// Level returns the current level of the line.
func (l *MockLine) Level() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.level
}

// SetLevel simulates an external signal on the line.
func (l *MockLine) SetLevel(level bool) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.level = level
}

// Writes returns all values written so far.
func (l *MockLine) Writes() []bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]bool(nil), l.writes...)
}

func (l *MockLine) Closed() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.closed
}

// Fail makes every following Read and Write return err. Nil clears the failure.
func (l *MockLine) Fail(err error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.fail = err
}

// MockLines hands out MockLine values and keeps them for inspection.
type MockLines struct {
	mx    sync.Mutex
	lines map[int]*MockLine
	// OnWrite is installed on every line opened after it is set.
	OnWrite func(number int, value bool)
	// FailOpen makes opening the given line numbers fail.
	FailOpen map[int]error
}

func NewMockLines() *MockLines {
	return &MockLines{lines: map[int]*MockLine{}}
}

func (m *MockLines) OpenLine(number int, mode fezhat.Mode) (fezhat.Line, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err, ok := m.FailOpen[number]; ok {
		return nil, err
	}
	line := NewMockLine(number, mode)
	line.onWrite = m.OnWrite
	m.lines[number] = line
	return line, nil
}

// Line returns the line opened with number, nil if it was never opened.
func (m *MockLines) Line(number int) *MockLine {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.lines[number]
}

// All returns every opened line.
func (m *MockLines) All() []*MockLine {
	m.mx.Lock()
	defer m.mx.Unlock()
	res := make([]*MockLine, 0, len(m.lines))
	for _, l := range m.lines {
		res = append(res, l)
	}
	return res
}
