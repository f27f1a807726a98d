package environment

import (
	"context"
	"sync/atomic"
)

// TemperatureBehaviorFunc defines the function signature for temperature behavior.
// It returns the temperature in Celsius or an error.
type TemperatureBehaviorFunc func(ctx context.Context) (float32, error)

// MockTemperatureSensor is a TemperatureSensor driven by a behavior function, for
// code that consumes readings (Poll, the CLI) without a bus or a simulator.
type MockTemperatureSensor struct {
	behavior TemperatureBehaviorFunc
	calls    atomic.Int64
}

// NewMockTemperatureSensor creates a new mock temperature sensor with the given behavior function.
//
// Example usage:
//
//	sensor := NewMockTemperatureSensor(func(ctx context.Context) (float32, error) { return 25.0, nil })
func NewMockTemperatureSensor(behavior TemperatureBehaviorFunc) *MockTemperatureSensor {
	return &MockTemperatureSensor{behavior: behavior}
}

// GetTemperature returns the temperature by calling the behavior function.
func (m *MockTemperatureSensor) GetTemperature(ctx context.Context) (float32, error) {
	m.calls.Add(1)
	return m.behavior(ctx)
}

// Calls returns how many times GetTemperature was invoked.
func (m *MockTemperatureSensor) Calls() int {
	return int(m.calls.Load())
}

var _ TemperatureSensor = &MockTemperatureSensor{}
var _ TemperatureSensor = &NCT7717U{}
