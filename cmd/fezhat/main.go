package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/fezhat/board"
	"github.com/mklimuk/fezhat/cmd/fezhat/console"
	"github.com/mklimuk/fezhat/hatctx"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "fezhat"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "FEZ HAT command line"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable debug logging and bus frame dumps",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "board wiring `FILE` (YAML), defaults to the FEZ HAT wiring",
			EnvVars: []string{"FEZHAT_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Usage:   "bus transport: periph, gobot or mcp2221",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "hat",
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&statusCmd,
		&watchCmd,
		&motorCmd,
		&servoCmd,
		&ledCmd,
		&pwmCmd,
		&frequencyCmd,
		&digitalCmd,
		&analogCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			return exerr.ExitCode()
		}
		slog.Error("unexpected error", "error", err)
		return 1
	}
	return 0
}

// commandContext is canceled on SIGINT and SIGTERM and carries the verbose flag.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	return hatctx.SetVerbose(ctx, c.Bool("verbose")), cancel
}

func loadConfig(c *cli.Context) (board.Config, error) {
	cfg := board.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = board.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if transport := c.String("transport"); transport != "" {
		cfg.Transport = transport
	}
	return cfg, cfg.Validate()
}

// withBoard opens the board, runs fn and closes the board. Closing stops the
// motors and disables the PWM outputs.
func withBoard(c *cli.Context, fn func(ctx context.Context, b *board.Board) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return console.Fail(err, "invalid configuration")
	}
	ctx, cancel := commandContext(c)
	defer cancel()
	b, err := board.Open(ctx, board.WithConfig(cfg))
	if err != nil {
		return console.Fail(err, "could not open board")
	}
	defer func() {
		if err := b.Close(context.Background()); err != nil {
			console.Warnf("board close: %s", err)
		}
	}()
	return fn(ctx, b)
}

// hold keeps outputs driven until d elapses or the command is interrupted.
func hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	console.Infof("holding for %s, press Ctrl+C to stop", console.White(d))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

var holdFlag = &cli.DurationFlag{
	Name:  "for",
	Usage: "how long to keep the output driven before releasing the board",
	Value: 3 * time.Second,
}
