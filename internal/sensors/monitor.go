package sensors

import (
	"sync"

	"github.com/banshee-data/sensorhub/internal/sensormux"
)

// Source is the part of a manager a Monitor uses.
type Source[T any] interface {
	IsSupported() bool
	AddListener(l sensormux.Listener[T]) error
	RemoveListener(l sensormux.Listener[T]) error
}

// Monitor is one consumer's switchable view of a sensor. It keeps the latest
// reading and a human-readable status line while monitoring is on.
type Monitor[T any] struct {
	kind     Kind
	src      Source[T]
	listener *sensormux.ListenerFunc[T]
	onUpdate func(T)

	// toggleMu serializes SetMonitoring. mu is never held across calls
	// into the manager, so a listener may run while a toggle is in flight.
	toggleMu sync.Mutex

	mu      sync.Mutex
	on      bool
	stopped bool
	latest  T
	has     bool
	count   uint64
	err     error
}

// NewMonitor creates a monitor for kind, initially off. onUpdate, if not
// nil, runs on the delivery goroutine after each reading is recorded.
func NewMonitor[T any](kind Kind, src Source[T], onUpdate func(T)) *Monitor[T] {
	m := &Monitor[T]{kind: kind, src: src, onUpdate: onUpdate}
	m.listener = sensormux.NewListenerFunc(m.record)
	return m
}

func (m *Monitor[T]) record(reading T) error {
	m.mu.Lock()
	m.latest = reading
	m.has = true
	m.count++
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(reading)
	}
	return nil
}

// SetMonitoring turns the monitor on or off. Turning it on registers the
// monitor's listener, which starts the sensor if nobody else is listening.
// A failure is kept and reported by Status until the next successful call.
func (m *Monitor[T]) SetMonitoring(on bool) error {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()

	if on == m.IsMonitoring() {
		return nil
	}

	var err error
	if on {
		err = m.src.AddListener(m.listener)
	} else {
		err = m.src.RemoveListener(m.listener)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err

	switch {
	case on && err == nil:
		m.on = true
	case !on:
		// RemoveListener drops the listener even when the sensor fails to
		// stop, so the monitor is off either way.
		m.on = false
		m.stopped = true
	}
	return err
}

// IsMonitoring reports whether the monitor is switched on.
func (m *Monitor[T]) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Latest returns the most recent reading and whether there has been one.
func (m *Monitor[T]) Latest() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.has
}

// Count returns how many readings the monitor has received.
func (m *Monitor[T]) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Status describes the monitor for display, for example "Compass is on".
func (m *Monitor[T]) Status() string {
	name := m.kind.Title()
	if !m.src.IsSupported() {
		return name + " is not supported on this device"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.err != nil:
		return "Error: " + m.err.Error()
	case m.on:
		return name + " is on"
	case m.stopped:
		return name + " is off"
	default:
		return name + " is not started"
	}
}

// String returns the sensor's display name.
func (m *Monitor[T]) String() string { return m.kind.Title() }

// Close turns the monitor off.
func (m *Monitor[T]) Close() error {
	return m.SetMonitoring(false)
}
