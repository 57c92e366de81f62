package board

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/pwm"
)

// Motor drives one channel of the dual H-bridge: speed is the duty cycle of a PWM
// channel, direction is set by a pair of complementary lines.
type Motor struct {
	mx         sync.Mutex
	name       string
	pwm        *pwm.PCA9685
	channel    int
	direction1 fezhat.Line
	direction2 fezhat.Line
	forward    bool
	speed      float64
}

func newMotor(ctx context.Context, name string, controller *pwm.PCA9685, channel int, direction1, direction2 fezhat.Line) (*Motor, error) {
	m := &Motor{
		name:       name,
		pwm:        controller,
		channel:    channel,
		direction1: direction1,
		direction2: direction2,
	}
	if err := controller.SetDutyCycle(ctx, channel, 0); err != nil {
		return nil, fmt.Errorf("motor %s: %w", name, err)
	}
	// speed 0 selects the reverse direction
	if err := direction1.Write(false); err != nil {
		return nil, fmt.Errorf("motor %s: %w", name, err)
	}
	if err := direction2.Write(true); err != nil {
		return nil, fmt.Errorf("motor %s: %w", name, err)
	}
	return m, nil
}

// SetSpeed accepts values in [-1, 1]. The sign selects the direction. The
// channel is switched off first, then the direction lines are set and the new
// duty cycle applied. Lines already in the requested direction are not rewritten.
func (m *Motor) SetSpeed(ctx context.Context, speed float64) error {
	if math.IsNaN(speed) || speed < -1 || speed > 1 {
		return fmt.Errorf("motor %s: speed %v: %w", m.name, speed, fezhat.ErrOutOfRange)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.pwm.SetDutyCycle(ctx, m.channel, 0); err != nil {
		return fmt.Errorf("motor %s: %w", m.name, err)
	}
	m.speed = 0
	if forward := speed > 0; forward != m.forward {
		if err := m.setDirection(forward); err != nil {
			return err
		}
	}
	if speed == 0 {
		return nil
	}
	if err := m.pwm.SetDutyCycle(ctx, m.channel, math.Abs(speed)); err != nil {
		return fmt.Errorf("motor %s: %w", m.name, err)
	}
	m.speed = speed
	return nil
}

// setDirection releases the active line before driving the other one so both
// lines are never active together.
func (m *Motor) setDirection(forward bool) error {
	active, inactive := m.direction2, m.direction1
	if forward {
		active, inactive = m.direction1, m.direction2
	}
	if err := inactive.Write(false); err != nil {
		return fmt.Errorf("motor %s: could not set direction: %w", m.name, err)
	}
	if err := active.Write(true); err != nil {
		return fmt.Errorf("motor %s: could not set direction: %w", m.name, err)
	}
	m.forward = forward
	return nil
}

// Stop switches the channel off and leaves the direction lines untouched.
func (m *Motor) Stop(ctx context.Context) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.pwm.SetDutyCycle(ctx, m.channel, 0); err != nil {
		return fmt.Errorf("motor %s: %w", m.name, err)
	}
	m.speed = 0
	return nil
}

// Speed returns the last speed set.
func (m *Motor) Speed() float64 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.speed
}

func (m *Motor) Name() string {
	return m.name
}
