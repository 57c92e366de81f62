package environment

import "context"

type LightSensor interface {
	// GetLightLevel returns the light level as a fraction of full scale.
	GetLightLevel(ctx context.Context) (float64, error)
}

type TemperatureSensor interface {
	// GetTemperature returns the temperature in degrees Celsius.
	GetTemperature(ctx context.Context) (float64, error)
}

// AnalogReader reads an ADC channel as a fraction of the reference voltage.
type AnalogReader interface {
	Read(ctx context.Context, channel int) (float64, error)
}
