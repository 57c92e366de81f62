package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mklimuk/fezhat"
)

// PwmPin is a PWM channel brought out on the header.
type PwmPin int

const (
	Pwm5  PwmPin = 5
	Pwm6  PwmPin = 6
	Pwm7  PwmPin = 7
	Pwm11 PwmPin = 11
	Pwm12 PwmPin = 12
)

var PwmPins = []PwmPin{Pwm5, Pwm6, Pwm7, Pwm11, Pwm12}

func (p PwmPin) Valid() bool {
	switch p {
	case Pwm5, Pwm6, Pwm7, Pwm11, Pwm12:
		return true
	}
	return false
}

func (p PwmPin) String() string {
	return fmt.Sprintf("PWM%d", int(p))
}

// DigitalPin is a general purpose digital line on the header.
type DigitalPin int

const (
	DIO16 DigitalPin = iota
	DIO26
)

var DigitalPins = []DigitalPin{DIO16, DIO26}

func (p DigitalPin) Valid() bool {
	return p == DIO16 || p == DIO26
}

func (p DigitalPin) String() string {
	switch p {
	case DIO16:
		return "DIO16"
	case DIO26:
		return "DIO26"
	}
	return fmt.Sprintf("DigitalPin(%d)", int(p))
}

// AnalogPin is an ADC input on the header. Channels 4 and 5 are wired to the
// on-board temperature and light sensors.
type AnalogPin int

const (
	Ain1 AnalogPin = 1
	Ain2 AnalogPin = 2
	Ain3 AnalogPin = 3
	Ain6 AnalogPin = 6
	Ain7 AnalogPin = 7
)

var AnalogPins = []AnalogPin{Ain1, Ain2, Ain3, Ain6, Ain7}

func (p AnalogPin) Valid() bool {
	switch p {
	case Ain1, Ain2, Ain3, Ain6, Ain7:
		return true
	}
	return false
}

func (p AnalogPin) String() string {
	return fmt.Sprintf("AIN%d", int(p))
}

// ParsePwmPin accepts "PWM5" or "5".
func ParsePwmPin(s string) (PwmPin, error) {
	n, err := parsePinNumber(s, "pwm")
	if err != nil {
		return 0, err
	}
	if p := PwmPin(n); p.Valid() {
		return p, nil
	}
	return 0, fmt.Errorf("pwm pin %q: %w", s, fezhat.ErrOutOfRange)
}

// ParseDigitalPin accepts "DIO16" or "16".
func ParseDigitalPin(s string) (DigitalPin, error) {
	n, err := parsePinNumber(s, "dio")
	if err != nil {
		return 0, err
	}
	switch n {
	case 16:
		return DIO16, nil
	case 26:
		return DIO26, nil
	}
	return 0, fmt.Errorf("digital pin %q: %w", s, fezhat.ErrOutOfRange)
}

// ParseAnalogPin accepts "AIN1" or "1".
func ParseAnalogPin(s string) (AnalogPin, error) {
	n, err := parsePinNumber(s, "ain")
	if err != nil {
		return 0, err
	}
	if p := AnalogPin(n); p.Valid() {
		return p, nil
	}
	return 0, fmt.Errorf("analog pin %q: %w", s, fezhat.ErrOutOfRange)
}

func parsePinNumber(s, prefix string) (int, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), prefix)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid pin %q: %w", s, err)
	}
	return n, nil
}
