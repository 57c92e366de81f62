package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/fezhat/board"
	"github.com/mklimuk/fezhat/cmd/fezhat/console"
)

// sampler is the read side of board.Board.
type sampler interface {
	LightLevel(ctx context.Context) (float64, error)
	Temperature(ctx context.Context) (float64, error)
	Acceleration(ctx context.Context) (x, y, z float64, err error)
	IsDIO18Pressed() (bool, error)
	IsDIO22Pressed() (bool, error)
	ReadDigital(pin board.DigitalPin) (bool, error)
	ReadAnalog(ctx context.Context, pin board.AnalogPin) (float64, error)
}

type snapshot struct {
	Time         time.Time          `yaml:"time"`
	Light        float64            `yaml:"light"`
	Temperature  float64            `yaml:"temperature"`
	Acceleration [3]float64         `yaml:"acceleration,flow"`
	DIO18        bool               `yaml:"dio18_pressed"`
	DIO22        bool               `yaml:"dio22_pressed"`
	Digital      map[string]bool    `yaml:"digital"`
	Analog       map[string]float64 `yaml:"analog"`
}

// readSnapshot reads every sensor and input. Failed reads are skipped and
// reported together.
func readSnapshot(ctx context.Context, s sampler) (snapshot, error) {
	snap := snapshot{
		Time:    time.Now(),
		Digital: map[string]bool{},
		Analog:  map[string]float64{},
	}
	var errs, err error
	if snap.Light, err = s.LightLevel(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("light: %w", err))
	}
	if snap.Temperature, err = s.Temperature(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("temperature: %w", err))
	}
	x, y, z, err := s.Acceleration(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("acceleration: %w", err))
	}
	snap.Acceleration = [3]float64{x, y, z}
	if snap.DIO18, err = s.IsDIO18Pressed(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("DIO18: %w", err))
	}
	if snap.DIO22, err = s.IsDIO22Pressed(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("DIO22: %w", err))
	}
	for _, pin := range board.DigitalPins {
		v, err := s.ReadDigital(pin)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", pin, err))
			continue
		}
		snap.Digital[pin.String()] = v
	}
	for _, pin := range board.AnalogPins {
		v, err := s.ReadAnalog(ctx, pin)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", pin, err))
			continue
		}
		snap.Analog[pin.String()] = v
	}
	return snap, errs
}

func printSnapshot(snap snapshot) {
	console.PInfof(console.PictoLight, "light        %s", console.White(fmt.Sprintf("%.3f", snap.Light)))
	console.PInfof(console.PictoThermometer, "temperature  %s", console.White(fmt.Sprintf("%.1f °C", snap.Temperature)))
	console.PInfof(console.PictoMotion, "acceleration %s", console.White(fmt.Sprintf("x=%+.3f y=%+.3f z=%+.3f g",
		snap.Acceleration[0], snap.Acceleration[1], snap.Acceleration[2])))
	console.PInfof(console.PictoButton, "DIO18 %s  DIO22 %s", pressed(snap.DIO18), pressed(snap.DIO22))
	for _, pin := range board.DigitalPins {
		if v, ok := snap.Digital[pin.String()]; ok {
			console.PInfof(console.PictoPin, "%s  %s", pin, console.OnOff(v))
		}
	}
	for _, pin := range board.AnalogPins {
		if v, ok := snap.Analog[pin.String()]; ok {
			console.PInfof(console.PictoPin, "%s  %s", pin, console.White(fmt.Sprintf("%.3f", v)))
		}
	}
}

func pressed(v bool) string {
	if v {
		return console.Green("pressed")
	}
	return "released"
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "read all sensors and inputs once",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yaml", Usage: "print as YAML"},
	},
	Action: func(c *cli.Context) error {
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			snap, err := readSnapshot(ctx, b)
			if err != nil {
				console.Warnf("some reads failed: %s", err)
			}
			if c.Bool("yaml") {
				enc := yaml.NewEncoder(os.Stdout)
				defer func() { _ = enc.Close() }()
				if err := enc.Encode(snap); err != nil {
					return console.Exit(1, "encoding error: %s", console.Red(err))
				}
				return nil
			}
			printSnapshot(snap)
			console.Infof("PWM frequency %s", console.White(fmt.Sprintf("%d Hz", b.PwmFrequency())))
			return nil
		})
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "poll sensors and inputs at a fixed interval until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "interval",
			Value: 100 * time.Millisecond,
			Usage: "polling interval",
		},
		&cli.BoolFlag{Name: "led", Usage: "mirror the DIO18 button on the DIO24 LED"},
	},
	Action: func(c *cli.Context) error {
		interval := c.Duration("interval")
		if interval <= 0 {
			return console.Exit(1, "interval must be positive")
		}
		return withBoard(c, func(ctx context.Context, b *board.Board) error {
			return watch(ctx, b, interval, func(snap snapshot) error {
				printSnapshot(snap)
				console.Printf("\n")
				if c.Bool("led") {
					return b.SetDIO24On(snap.DIO18)
				}
				return nil
			})
		})
	},
}

// watch takes a snapshot every interval until ctx is done. Polls never overlap.
func watch(ctx context.Context, s sampler, interval time.Duration, fn func(snapshot) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := readSnapshot(ctx, s)
		if err != nil {
			console.Warnf("%s", err)
		}
		if err = fn(snap); err != nil {
			return err
		}
		if ctx.Err() != nil {
			console.PInfof(console.PictoFinish, "stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			console.PInfof(console.PictoFinish, "stopped")
			return nil
		case <-ticker.C:
		}
	}
}
