package tmphm

import "context"

// Source is anything able to produce a measurement on demand. Reader
// implements it; Mock replaces it in tests and demos without hardware.
type Source interface {
	Measure(ctx context.Context) (Measurement, error)
}

// MeasureBehaviorFunc supplies the result of a mocked measurement.
type MeasureBehaviorFunc func(ctx context.Context) (Measurement, error)

// Mock is a hardware-free Source driven by a behavior function.
type Mock struct {
	behavior MeasureBehaviorFunc
}

func NewMock(behavior MeasureBehaviorFunc) *Mock {
	return &Mock{behavior: behavior}
}

func (m *Mock) Measure(ctx context.Context) (Measurement, error) {
	return m.behavior(ctx)
}
