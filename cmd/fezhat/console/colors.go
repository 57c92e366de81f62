package console

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/muesli/termenv"
)

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

var profile = termenv.ColorProfile()

// Swatch renders a block in the given RGB color, degraded to what the terminal supports.
func Swatch(r, g, b uint8) string {
	hex := fmt.Sprintf("#%02X%02X%02X", r, g, b)
	return termenv.String("██").Foreground(profile.Color(hex)).String()
}

// OnOff colors a boolean state.
func OnOff(v bool) string {
	if v {
		return Green("on")
	}
	return Yellow("off")
}
