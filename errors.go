package fezhat

import (
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")
var ErrBusTimeout = fmt.Errorf("I2C transaction timed out")

// ErrOutOfRange is returned when a channel, pin or value is outside its documented domain.
// Nothing is written to the hardware when it is returned.
var ErrOutOfRange = errors.New("value out of range")

var ErrNotCalibrated = errors.New("not calibrated")

// ErrFrequencyConflict is returned when an operation would change a PWM frequency
// that another actuator depends on.
var ErrFrequencyConflict = errors.New("pwm frequency reserved with a different value")

var ErrReleased = errors.New("driver released")

// ErrDriverFault means a multi-step register sequence failed half way and the chip
// may be left in an unknown state.
var ErrDriverFault = errors.New("driver fault")
