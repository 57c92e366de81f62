package board

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/fezhat"
	"github.com/mklimuk/fezhat/environment"
	"github.com/mklimuk/fezhat/i2c"
	"github.com/mklimuk/fezhat/pwm"
)

const (
	TransportPeriph  = "periph"
	TransportGobot   = "gobot"
	TransportMCP2221 = "mcp2221"
)

const (
	SensorOnboard = "onboard"
	SensorTC74    = "tc74"
)

const DefaultPwmFrequency = 1500

// Config describes how the board is wired. DefaultConfig matches the FEZ HAT.
type Config struct {
	Bus          string        `yaml:"bus"`
	Transport    string        `yaml:"transport"`
	GobotBus     int           `yaml:"gobot_bus"`
	Timeout      time.Duration `yaml:"timeout"`
	PwmFrequency int           `yaml:"pwm_frequency"`
	Strapping    Strapping     `yaml:"strapping"`
	Lines        Lines         `yaml:"lines"`
	MotorA       MotorConfig   `yaml:"motor_a"`
	MotorB       MotorConfig   `yaml:"motor_b"`
	D2           LedConfig     `yaml:"d2"`
	D3           LedConfig     `yaml:"d3"`
	S1           int           `yaml:"s1"`
	S2           int           `yaml:"s2"`
	LightChannel int           `yaml:"light_channel"`
	TempChannel  int           `yaml:"temperature_channel"`

	// TemperatureSensor selects the on-board MCP9701 ("onboard") or a TC74 on
	// the I2C header ("tc74").
	TemperatureSensor string `yaml:"temperature_sensor"`
	TC74Address       byte   `yaml:"tc74_address"`
}

// Strapping holds the address select inputs of each chip.
type Strapping struct {
	PWM   PwmStrapping `yaml:"pwm"`
	ADC   AdcStrapping `yaml:"adc"`
	Accel bool         `yaml:"accel"`
}

type PwmStrapping struct {
	A0 bool `yaml:"a0"`
	A1 bool `yaml:"a1"`
	A2 bool `yaml:"a2"`
	A3 bool `yaml:"a3"`
	A4 bool `yaml:"a4"`
	A5 bool `yaml:"a5"`
}

func (s PwmStrapping) Address() byte {
	return pwm.Address(s.A0, s.A1, s.A2, s.A3, s.A4, s.A5)
}

type AdcStrapping struct {
	A0 bool `yaml:"a0"`
	A1 bool `yaml:"a1"`
}

// Lines holds BCM numbers of the directly wired lines.
type Lines struct {
	PwmOutputEnable int `yaml:"pwm_output_enable"`
	MotorEnable     int `yaml:"motor_enable"`
	DIO16           int `yaml:"dio16"`
	DIO26           int `yaml:"dio26"`
	DIO24           int `yaml:"dio24"`
	DIO18           int `yaml:"dio18"`
	DIO22           int `yaml:"dio22"`
}

type MotorConfig struct {
	Channel    int `yaml:"channel"`
	Direction1 int `yaml:"direction1"`
	Direction2 int `yaml:"direction2"`
}

type LedConfig struct {
	Red   int `yaml:"red"`
	Green int `yaml:"green"`
	Blue  int `yaml:"blue"`
}

func DefaultConfig() Config {
	return Config{
		Bus:          fezhat.I2cDeviceName,
		Transport:    TransportPeriph,
		GobotBus:     1,
		Timeout:      i2c.DefaultTimeout,
		PwmFrequency: DefaultPwmFrequency,
		Strapping: Strapping{
			PWM: PwmStrapping{A0: true, A1: true, A2: true, A3: true, A4: true, A5: true},
		},
		Lines: Lines{
			PwmOutputEnable: 13,
			MotorEnable:     12,
			DIO16:           16,
			DIO26:           26,
			DIO24:           24,
			DIO18:           18,
			DIO22:           22,
		},
		MotorA:       MotorConfig{Channel: 14, Direction1: 27, Direction2: 23},
		MotorB:       MotorConfig{Channel: 13, Direction1: 6, Direction2: 5},
		D2:           LedConfig{Red: 1, Green: 0, Blue: 2},
		D3:           LedConfig{Red: 4, Green: 3, Blue: 15},
		S1:           9,
		S2:           10,
		LightChannel: 5,
		TempChannel:  4,

		TemperatureSensor: SensorOnboard,
		TC74Address:       environment.TC74DefaultAddress,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("could not read config: %w", err)
	}
	if err = yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return config, config.Validate()
}

// Validate checks channel ranges and that no PWM channel is used twice.
func (c Config) Validate() error {
	if c.PwmFrequency <= 0 {
		return fmt.Errorf("pwm frequency %d: %w", c.PwmFrequency, fezhat.ErrOutOfRange)
	}
	used := map[int]string{}
	channels := []struct {
		name    string
		channel int
	}{
		{"motor_a", c.MotorA.Channel},
		{"motor_b", c.MotorB.Channel},
		{"d2.red", c.D2.Red},
		{"d2.green", c.D2.Green},
		{"d2.blue", c.D2.Blue},
		{"d3.red", c.D3.Red},
		{"d3.green", c.D3.Green},
		{"d3.blue", c.D3.Blue},
		{"s1", c.S1},
		{"s2", c.S2},
	}
	for _, ch := range channels {
		if ch.channel < 0 || ch.channel >= pwm.Channels {
			return fmt.Errorf("%s: pwm channel %d: %w", ch.name, ch.channel, fezhat.ErrOutOfRange)
		}
		if other, ok := used[ch.channel]; ok {
			return fmt.Errorf("%s: pwm channel %d already used by %s", ch.name, ch.channel, other)
		}
		used[ch.channel] = ch.name
	}
	for _, ch := range []int{c.LightChannel, c.TempChannel} {
		if ch < 0 || ch >= 8 {
			return fmt.Errorf("analog channel %d: %w", ch, fezhat.ErrOutOfRange)
		}
	}
	switch c.Transport {
	case TransportPeriph, TransportGobot, TransportMCP2221:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.TemperatureSensor {
	case SensorOnboard, SensorTC74:
	default:
		return fmt.Errorf("unknown temperature sensor %q", c.TemperatureSensor)
	}
	return nil
}
