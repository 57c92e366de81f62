package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/fezhat/pwm"
)

// RgbLed is a tri-color LED with each component on its own PWM channel.
type RgbLed struct {
	mx    sync.Mutex
	name  string
	pwm   *pwm.PCA9685
	red   int
	green int
	blue  int
	color Color
}

func newRgbLed(name string, controller *pwm.PCA9685, config LedConfig) *RgbLed {
	return &RgbLed{
		name:  name,
		pwm:   controller,
		red:   config.Red,
		green: config.Green,
		blue:  config.Blue,
	}
}

// SetColor writes red, green and blue in that order. The stored color only
// changes when all three writes succeed.
func (l *RgbLed) SetColor(ctx context.Context, c Color) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.write(ctx, c); err != nil {
		return err
	}
	l.color = c
	return nil
}

// TurnOff switches all components off and resets the stored color to Black.
func (l *RgbLed) TurnOff(ctx context.Context) error {
	return l.SetColor(ctx, Black)
}

func (l *RgbLed) Color() Color {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.color
}

func (l *RgbLed) Name() string {
	return l.name
}

func (l *RgbLed) write(ctx context.Context, c Color) error {
	for _, component := range []struct {
		channel int
		value   uint8
	}{
		{l.red, c.R},
		{l.green, c.G},
		{l.blue, c.B},
	} {
		if err := l.pwm.SetDutyCycle(ctx, component.channel, float64(component.value)/255); err != nil {
			return fmt.Errorf("led %s: %w", l.name, err)
		}
	}
	return nil
}
