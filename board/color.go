package board

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Color of an on-board RGB LED.
type Color struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
}

var (
	Red     = Color{255, 0, 0}
	Green   = Color{0, 255, 0}
	Blue    = Color{0, 0, 255}
	Cyan    = Color{0, 255, 255}
	Magenta = Color{255, 0, 255}
	Yellow  = Color{255, 255, 0}
	White   = Color{255, 255, 255}
	Black   = Color{0, 0, 0}
)

var namedColors = map[string]Color{
	"red":     Red,
	"green":   Green,
	"blue":    Blue,
	"cyan":    Cyan,
	"magenta": Magenta,
	"yellow":  Yellow,
	"white":   White,
	"black":   Black,
	"off":     Black,
}

func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseColor accepts a color name or a hex triplet such as "#FF8000".
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(raw) != 3 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	return Color{raw[0], raw[1], raw[2]}, nil
}
