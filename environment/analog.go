package environment

import (
	"context"
	"fmt"
)

var _ LightSensor = &AnalogLightSensor{}
var _ TemperatureSensor = &MCP9701{}

// AnalogLightSensor is a phototransistor divider read by an ADC channel.
type AnalogLightSensor struct {
	adc     AnalogReader
	channel int
}

func NewAnalogLightSensor(adc AnalogReader, channel int) *AnalogLightSensor {
	return &AnalogLightSensor{adc: adc, channel: channel}
}

// GetLightLevel returns the raw fraction, 0 is dark and 1 is saturated.
func (s *AnalogLightSensor) GetLightLevel(ctx context.Context) (float64, error) {
	v, err := s.adc.Read(ctx, s.channel)
	if err != nil {
		return 0, fmt.Errorf("light sensor: %w", err)
	}
	return v, nil
}

// MCP9701 represents a Microchip MCP9701 linear active thermistor read by an ADC
// channel referenced to 3.3V.
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/20001942G.pdf
type MCP9701 struct {
	adc     AnalogReader
	channel int
}

const (
	mcp9701ReferenceMillivolts = 3300.0
	mcp9701OffsetMillivolts    = 450.0
	mcp9701MillivoltsPerDegree = 19.5
)

func NewMCP9701(adc AnalogReader, channel int) *MCP9701 {
	return &MCP9701{adc: adc, channel: channel}
}

func (s *MCP9701) GetTemperature(ctx context.Context) (float64, error) {
	v, err := s.adc.Read(ctx, s.channel)
	if err != nil {
		return 0, fmt.Errorf("mcp9701: %w", err)
	}
	return MCP9701Celsius(v), nil
}

// MCP9701Celsius converts a fraction of the reference voltage to degrees Celsius.
func MCP9701Celsius(fraction float64) float64 {
	return (fraction*mcp9701ReferenceMillivolts - mcp9701OffsetMillivolts) / mcp9701MillivoltsPerDegree
}
