package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/fezhat/board"
	"github.com/mklimuk/fezhat/cmd/fezhat/console"
	"github.com/mklimuk/fezhat/pwm"
)

var pwmCmd = cli.Command{
	Name:      "pwm",
	Usage:     "set the duty cycle of a header PWM pin",
	ArgsUsage: "PIN DUTY",
	Flags:     []cli.Flag{holdFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		pin, err := board.ParsePwmPin(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		duty, err := strconv.ParseFloat(c.Args().Get(1), 64)
		if err != nil {
			return console.Exit(1, "invalid duty cycle %q: %v", c.Args().Get(1), err)
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			if err := b.SetPwmDutyCycle(ctx, pin, duty); err != nil {
				return console.Fail(err, "%s", pin)
			}
			console.PInfof(console.PictoPin, "%s duty cycle %s", pin, console.White(duty))
			hold(ctx, c.Duration("for"))
			return nil
		})
	},
}

var frequencyCmd = cli.Command{
	Name:      "frequency",
	Aliases:   []string{"freq"},
	Usage:     "show or change the PWM frequency shared by all channels",
	ArgsUsage: "[HZ]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() > 1 {
			return console.Exit(1, "expected at most 1 argument, got %d", c.NArg())
		}
		if c.NArg() == 0 {
			return withBoard(c, func(ctx context.Context, b *board.Board) error {
				console.Infof("PWM frequency %s", console.White(fmt.Sprintf("%d Hz", b.PwmFrequency())))
				return nil
			})
		}
		hz, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "invalid frequency %q: %v", c.Args().Get(0), err)
		}
		if !c.Bool("yes") {
			console.Warnf("the frequency applies to motors, servos and LEDs alike")
			ok, err := console.Confirm(fmt.Sprintf("change PWM frequency to %d Hz?", hz))
			if err != nil {
				return console.Exit(1, "prompt error: %v", err)
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			if err := b.SetPwmFrequency(ctx, hz); err != nil {
				return console.Fail(err, "frequency")
			}
			console.Infof("PWM frequency %s (prescale %d)", console.White(fmt.Sprintf("%d Hz", hz)), pwm.PrescaleFor(hz))
			return nil
		})
	},
}

var digitalCmd = cli.Command{
	Name:  "digital",
	Usage: "read or write DIO16 and DIO26",
	Subcommands: cli.Commands{
		{
			Name:      "read",
			ArgsUsage: "PIN",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return console.Exit(1, "expected 1 argument, got %d", c.NArg())
				}
				pin, err := board.ParseDigitalPin(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				return withBoard(c, func(ctx context.Context, b *board.Board) error {
					v, err := b.ReadDigital(pin)
					if err != nil {
						return console.Fail(err, "%s", pin)
					}
					console.PInfof(console.PictoPin, "%s %s", pin, console.OnOff(v))
					return nil
				})
			},
		},
		{
			Name:      "write",
			ArgsUsage: "PIN STATE",
			Flags:     []cli.Flag{holdFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
				}
				pin, err := board.ParseDigitalPin(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				state, err := parseState(c.Args().Get(1))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				return withBoard(c, func(ctx context.Context, b *board.Board) error {
					if err := b.WriteDigital(pin, state); err != nil {
						return console.Fail(err, "%s", pin)
					}
					console.PInfof(console.PictoPin, "%s %s", pin, console.OnOff(state))
					hold(ctx, c.Duration("for"))
					return nil
				})
			},
		},
	},
}

var analogCmd = cli.Command{
	Name:      "analog",
	Usage:     "read a header analog input as a fraction of 3.3V",
	ArgsUsage: "PIN",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		pin, err := board.ParseAnalogPin(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			v, err := b.ReadAnalog(ctx, pin)
			if err != nil {
				return console.Fail(err, "%s", pin)
			}
			console.PInfof(console.PictoPin, "%s %s (%s)", pin, console.White(fmt.Sprintf("%.3f", v)),
				fmt.Sprintf("%.0f mV", v*3300))
			return nil
		})
	},
}
