package environment

import (
	"context"
)

// SampleFunc produces a reading without any hardware.
type SampleFunc func(ctx context.Context) (float64, error)

// MockLightSensor returns whatever its behavior function produces.
//
// Example usage:
//
//	sensor := NewMockLightSensor(func(ctx context.Context) (float64, error) { return 0.5, nil })
type MockLightSensor struct {
	behavior SampleFunc
}

func NewMockLightSensor(behavior SampleFunc) *MockLightSensor {
	return &MockLightSensor{behavior: behavior}
}

func (m *MockLightSensor) GetLightLevel(ctx context.Context) (float64, error) {
	return m.behavior(ctx)
}

// MockTemperatureSensor returns whatever its behavior function produces.
type MockTemperatureSensor struct {
	behavior SampleFunc
}

func NewMockTemperatureSensor(behavior SampleFunc) *MockTemperatureSensor {
	return &MockTemperatureSensor{behavior: behavior}
}

func (m *MockTemperatureSensor) GetTemperature(ctx context.Context) (float64, error) {
	return m.behavior(ctx)
}
