package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/fezhat/board"
	"github.com/mklimuk/fezhat/cmd/fezhat/console"
)

var motorCmd = cli.Command{
	Name:      "motor",
	Usage:     "drive motor A or B",
	ArgsUsage: "a|b SPEED",
	Flags:     []cli.Flag{holdFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		speed, err := strconv.ParseFloat(c.Args().Get(1), 64)
		if err != nil {
			return console.Exit(1, "invalid speed %q: %v", c.Args().Get(1), err)
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			var m *board.Motor
			switch strings.ToLower(c.Args().Get(0)) {
			case "a":
				m = b.MotorA()
			case "b":
				m = b.MotorB()
			default:
				return console.Exit(1, "unknown motor %q", c.Args().Get(0))
			}
			if err := m.SetSpeed(ctx, speed); err != nil {
				return console.Fail(err, "motor %s", m.Name())
			}
			console.PInfof(console.PictoMotor, "motor %s speed %s", m.Name(), console.White(m.Speed()))
			hold(ctx, c.Duration("for"))
			return nil
		})
	},
}

var servoCmd = cli.Command{
	Name:      "servo",
	Usage:     "move servo S1 or S2 (sets the PWM frequency to 50 Hz)",
	ArgsUsage: "s1|s2 ANGLE",
	Flags: []cli.Flag{
		holdFlag,
		&cli.IntFlag{Name: "min-pulse", Value: 500, Usage: "pulse width at min angle in microseconds"},
		&cli.IntFlag{Name: "max-pulse", Value: 2400, Usage: "pulse width at max angle in microseconds"},
		&cli.Float64Flag{Name: "min-angle", Value: 0},
		&cli.Float64Flag{Name: "max-angle", Value: 180},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		angle, err := strconv.ParseFloat(c.Args().Get(1), 64)
		if err != nil {
			return console.Exit(1, "invalid angle %q: %v", c.Args().Get(1), err)
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			var s *board.Servo
			switch strings.ToLower(c.Args().Get(0)) {
			case "s1":
				s = b.S1()
			case "s2":
				s = b.S2()
			default:
				return console.Exit(1, "unknown servo %q", c.Args().Get(0))
			}
			err := s.SetLimits(ctx, c.Int("min-pulse"), c.Int("max-pulse"), c.Float64("min-angle"), c.Float64("max-angle"))
			if err != nil {
				return console.Fail(err, "servo %s calibration", s.Name())
			}
			if err = s.SetPosition(ctx, angle); err != nil {
				return console.Fail(err, "servo %s", s.Name())
			}
			console.PInfof(console.PictoServo, "servo %s at %s°", s.Name(), console.White(s.Position()))
			hold(ctx, c.Duration("for"))
			return nil
		})
	},
}

var ledCmd = cli.Command{
	Name:      "led",
	Usage:     "set the color of LED D2 or D3, or switch DIO24",
	ArgsUsage: "d2|d3 COLOR | dio24 on|off",
	Flags:     []cli.Flag{holdFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		name, value := strings.ToLower(c.Args().Get(0)), c.Args().Get(1)
		if name == "dio24" {
			on, err := parseState(value)
			if err != nil {
				return console.Exit(1, "%v", err)
			}
			return withBoard(c, func(ctx context.Context, b *board.Board) error {
				if err := b.SetDIO24On(on); err != nil {
					return console.Fail(err, "DIO24")
				}
				console.PInfof(console.PictoLight, "DIO24 %s", console.OnOff(on))
				hold(ctx, c.Duration("for"))
				return nil
			})
		}
		color, err := board.ParseColor(value)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			var led *board.RgbLed
			switch name {
			case "d2":
				led = b.D2()
			case "d3":
				led = b.D3()
			default:
				return console.Exit(1, "unknown led %q", name)
			}
			if err := led.SetColor(ctx, color); err != nil {
				return console.Fail(err, "led %s", led.Name())
			}
			console.PInfof(console.PictoLight, "%s %s %s", led.Name(), console.Swatch(color.R, color.G, color.B), color)
			hold(ctx, c.Duration("for"))
			return nil
		})
	},
}

func parseState(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "on", "high", "true":
		return true, nil
	case "0", "off", "low", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q", s)
}
