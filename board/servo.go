package board

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/pwm"
)

// ServoFrequency is the frame rate hobby servos expect.
const ServoFrequency = 50

// Servo positions a hobby servo with the pulse width of a PWM channel. It must be
// calibrated with SetLimits before use.
type Servo struct {
	mx      sync.Mutex
	name    string
	pwm     *pwm.PCA9685
	channel int

	position   float64
	minAngle   float64
	maxAngle   float64
	scale      float64
	offset     float64
	frequency  int
	calibrated bool
}

func newServo(name string, controller *pwm.PCA9685, channel int) *Servo {
	return &Servo{name: name, pwm: controller, channel: channel}
}

// SetLimits reserves the servo frame rate on the controller and maps the angle
// range onto the pulse width range given in microseconds. Limits are checked
// before the controller is touched; a rejected call keeps the previous calibration.
func (s *Servo) SetLimits(ctx context.Context, minPulseWidth, maxPulseWidth int, minAngle, maxAngle float64) error {
	if minPulseWidth < 0 || maxPulseWidth < 0 || minAngle < 0 || maxAngle < 0 {
		return fmt.Errorf("servo %s: negative limit: %w", s.name, fezhat.ErrOutOfRange)
	}
	if minPulseWidth >= maxPulseWidth || minAngle >= maxAngle {
		return fmt.Errorf("servo %s: lower limit above upper limit: %w", s.name, fezhat.ErrOutOfRange)
	}
	period := 1e6 / float64(ServoFrequency)
	minTicks := int(float64(minPulseWidth) / period * pwm.Resolution)
	maxTicks := int(float64(maxPulseWidth) / period * pwm.Resolution)
	if maxTicks > pwm.MaxTicks {
		return fmt.Errorf("servo %s: pulse width %dus longer than period: %w", s.name, maxPulseWidth, fezhat.ErrOutOfRange)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.pwm.ReserveFrequency(ctx, s.owner(), ServoFrequency); err != nil {
		return fmt.Errorf("servo %s: %w", s.name, err)
	}
	s.scale = float64(maxTicks-minTicks) / (maxAngle - minAngle)
	s.offset = float64(minTicks) - s.scale*minAngle
	s.minAngle = minAngle
	s.maxAngle = maxAngle
	s.frequency = ServoFrequency
	s.calibrated = true
	return nil
}

// SetPosition moves the servo to angle, which must lie within the calibrated range.
func (s *Servo) SetPosition(ctx context.Context, angle float64) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.calibrated {
		return fmt.Errorf("servo %s: %w", s.name, fezhat.ErrNotCalibrated)
	}
	if s.pwm.Frequency() != s.frequency {
		s.calibrated = false
		return fmt.Errorf("servo %s: controller frequency changed: %w", s.name, fezhat.ErrNotCalibrated)
	}
	if math.IsNaN(angle) || angle < s.minAngle || angle > s.maxAngle {
		return fmt.Errorf("servo %s: angle %v outside [%v, %v]: %w", s.name, angle, s.minAngle, s.maxAngle, fezhat.ErrOutOfRange)
	}
	ticks := uint16(math.Round(s.scale*angle + s.offset))
	if err := s.pwm.SetChannel(ctx, s.channel, 0, ticks); err != nil {
		return fmt.Errorf("servo %s: %w", s.name, err)
	}
	s.position = angle
	return nil
}

// Disable switches the channel off, drops the calibration and frees the frame rate
// reservation.
func (s *Servo) Disable(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.calibrated = false
	s.pwm.ReleaseFrequency(s.owner())
	if err := s.pwm.SetDutyCycle(ctx, s.channel, 0); err != nil {
		return fmt.Errorf("servo %s: %w", s.name, err)
	}
	return nil
}

// Position returns the last angle set.
func (s *Servo) Position() float64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.position
}

func (s *Servo) Calibrated() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.calibrated
}

func (s *Servo) Name() string {
	return s.name
}

func (s *Servo) owner() string {
	return "servo " + s.name
}
