package adapter

import (
	"context"
	"fmt"
)

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

// MarshalYAML prints the mode name in status dumps.
func (m GPIOMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// alternate function of GP0
	GPIO0LedUartRx GPIODesignation = 0b00000001
	// dedicated function of GP0
	GPIO0SSPND GPIODesignation = 0b00000010
	// dedicated function of GP1
	GPIO1ClockOutput GPIODesignation = 0b00000001
	GPIO1ADC1        GPIODesignation = 0b00000010
	GPIO1LedUartTx   GPIODesignation = 0b00000011
	// interrupt on change, can be wired to the accelerometer interrupt output
	GPIO1InterruptDetection GPIODesignation = 0b00000100
	GPIO2ClockOutput        GPIODesignation = 0b00000001
	GPIO2ADC2               GPIODesignation = 0b00000010
	GPIO2DAC1               GPIODesignation = 0b00000011
	GPIO3LEDI2C             GPIODesignation = 0b00000001
	GPIO3ADC3               GPIODesignation = 0b00000010
	GPIO3DAC2               GPIODesignation = 0b00000011
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

// GPIOPin is the state of one of the four general purpose pins.
type GPIOPin struct {
	Mode  GPIOMode `yaml:"mode"`
	Value byte     `yaml:"value"`
}

type GPIOValues [4]GPIOPin

type GPIOSetting struct {
	Mode        GPIOMode        `yaml:"mode"`
	Designation GPIODesignation `yaml:"designation"`
}

type GPIOParameters [4]GPIOSetting

// ReadGPIO returns the current value and direction of GP0-GP3. Pins not in GPIO
// operation report GPIOModeNoOperation.
func (d *MCP2221) ReadGPIO(ctx context.Context) (GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIO
	var res GPIOValues
	if err := d.send(ctx); err != nil {
		return res, fmt.Errorf("mcp2221: read GPIO values command failed: %w", err)
	}
	if d.response[1] == responseBusy {
		return res, ErrCommandFailed
	}
	for i := range res {
		value, direction := d.response[2+2*i], d.response[3+2*i]
		res[i] = GPIOPin{Mode: GPIOModeNoOperation, Value: value}
		if direction != byte(GPIOModeNoOperation) {
			res[i].Mode = GPIOMode(direction << 3)
		}
	}
	return res, nil
}

// GetGPIOParameters reads the power-up GP settings from flash.
func (d *MCP2221) GetGPIOParameters(ctx context.Context) (GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadFlash
	d.request[1] = flashGPSettings
	var res GPIOParameters
	if err := d.send(ctx); err != nil {
		return res, fmt.Errorf("mcp2221: get GP parameters command failed: %w", err)
	}
	if d.response[1] == responseBusy {
		return res, ErrCommandUnsupported
	}
	for i := range res {
		raw := d.response[4+i]
		res[i] = GPIOSetting{
			Mode:        GPIOMode(raw & gpioModeMask),
			Designation: GPIODesignation(raw & gpioOperationMask),
		}
	}
	return res, nil
}

// SetGPIOParameters writes the power-up GP settings to flash.
func (d *MCP2221) SetGPIOParameters(ctx context.Context, params GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteFlash
	d.request[1] = flashGPSettings
	for i, p := range params {
		d.request[2+i] = byte(p.Designation) | byte(p.Mode)
	}
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("mcp2221: set GP parameters command failed: %w", err)
	}
	if d.response[1] == responseBusy {
		return ErrCommandFailed
	}
	return nil
}
