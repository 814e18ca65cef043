package sensormux

import (
	"sync"
)

// TestableDriver implements Driver with configurable behaviour for testing.
// It records every call and lets tests push readings with Emit.
type TestableDriver[T any] struct {
	mu sync.Mutex

	// Supported is returned by IsSupported.
	Supported bool

	// StartError is returned by every Start call while set.
	StartError error

	// StopError is returned by every Stop call while set.
	StopError error

	// OnStart runs inside Start, after the driver is marked monitoring and
	// without the driver lock held.
	OnStart func()

	monitoring bool
	handler    func(T)

	// StartCalls records the number of Start calls.
	StartCalls int

	// StopCalls records the number of Stop calls.
	StopCalls int

	// Rates records the rate passed to each Start call.
	Rates []Rate
}

// NewTestableDriver creates a supported, stopped TestableDriver.
func NewTestableDriver[T any]() *TestableDriver[T] {
	return &TestableDriver[T]{Supported: true}
}

// IsSupported implements Driver.
func (d *TestableDriver[T]) IsSupported() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Supported
}

// IsMonitoring implements Driver.
func (d *TestableDriver[T]) IsMonitoring() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.monitoring
}

// Start implements Driver.
func (d *TestableDriver[T]) Start(rate Rate) error {
	d.mu.Lock()
	d.StartCalls++
	d.Rates = append(d.Rates, rate)
	if d.StartError != nil {
		err := d.StartError
		d.mu.Unlock()
		return err
	}
	d.monitoring = true
	onStart := d.OnStart
	d.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	return nil
}

// Stop implements Driver.
func (d *TestableDriver[T]) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StopCalls++
	if d.StopError != nil {
		return d.StopError
	}
	d.monitoring = false
	return nil
}

// SetHandler implements Driver.
func (d *TestableDriver[T]) SetHandler(h func(T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Emit pushes a reading to the installed handler, as hardware would. It
// reports whether a handler was installed.
func (d *TestableDriver[T]) Emit(reading T) bool {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h == nil {
		return false
	}
	h(reading)
	return true
}

// Halt simulates the hardware stopping on its own.
func (d *TestableDriver[T]) Halt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.monitoring = false
}

// Calls returns the recorded Start and Stop call counts.
func (d *TestableDriver[T]) Calls() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.StartCalls, d.StopCalls
}

// SetStartError changes StartError under the driver lock.
func (d *TestableDriver[T]) SetStartError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartError = err
}

// HasHandler reports whether a handler is installed.
func (d *TestableDriver[T]) HasHandler() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler != nil
}
