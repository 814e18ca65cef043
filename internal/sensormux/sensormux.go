// Package sensormux turns a single stateful hardware sensor into a
// reference-counted, multi-listener publish/subscribe facility.
//
// A Manager owns exactly one Driver. The driver is started when the first
// listener is added and stopped when the last one is removed, so the sensor
// runs if and only if somebody is listening. Readings pushed by the driver
// are fanned out to every registered listener on a single delivery
// Executor, never on the driver's own goroutine.
//
// Removal is synchronous for the registry: once RemoveListener returns, the
// listener is not scheduled for later readings and deliveries already queued
// for it are skipped. An invocation that is already executing on the
// delivery goroutine when RemoveListener returns still completes, so a
// listener can observe at most one reading after asking to be removed.
package sensormux

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// State is the manager's lifecycle state.
type State int

const (
	// Idle means no listeners and the sensor is stopped.
	Idle State = iota
	// Active means at least one listener and the sensor is started.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Manager fans readings from one hardware sensor out to its listeners.
type Manager[T any] struct {
	name string
	drv  Driver[T]
	rate Rate
	exec Executor

	// mu guards the registry, the closed flag and every driver Start/Stop.
	// It is never held while a listener runs.
	mu        sync.Mutex
	reg       registry[T]
	closed    bool
	stateHook func(name string, s State)

	// snapshot is the published copy of reg.list read by Deliver without
	// taking mu.
	snapshot atomic.Pointer[[]*entry[T]]

	readings  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	starts    atomic.Uint64
	stops     atomic.Uint64
}

// New creates a manager for the named sensor and installs Deliver as the
// driver's reading handler. The sensor stays stopped until a listener is
// added.
func New[T any](name string, drv Driver[T], rate Rate, exec Executor) *Manager[T] {
	m := &Manager[T]{
		name: name,
		drv:  drv,
		rate: rate,
		exec: exec,
	}
	m.snapshot.Store(&[]*entry[T]{})
	drv.SetHandler(m.Deliver)
	return m
}

// SetStateHook installs f to be called on every Idle/Active transition. The
// hook runs while the manager's lock is held, so it must not call back into
// the manager.
func (m *Manager[T]) SetStateHook(f func(name string, s State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateHook = f
}

// Name returns the sensor kind this manager serves.
func (m *Manager[T]) Name() string { return m.name }

func (m *Manager[T]) String() string { return m.name }

// Rate returns the sampling rate used when the sensor is started.
func (m *Manager[T]) Rate() Rate { return m.rate }

// IsSupported reports whether the device has this sensor.
func (m *Manager[T]) IsSupported() bool { return m.drv.IsSupported() }

// IsMonitoring reports whether the hardware is running. It reflects the
// driver, not the listener count, so it turns false if the hardware stops on
// its own.
func (m *Manager[T]) IsMonitoring() bool { return m.drv.IsMonitoring() }

// State reports Active while at least one listener is registered.
func (m *Manager[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager[T]) stateLocked() State {
	if m.reg.len() > 0 {
		return Active
	}
	return Idle
}

// Listeners returns the number of registered listeners.
func (m *Manager[T]) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.len()
}

// AddListener registers l. The first listener starts the sensor; adding a
// listener that is already registered does nothing. If the sensor fails to
// start the registration is rolled back and the error wraps ErrStartFailed.
func (m *Manager[T]) AddListener(l Listener[T]) error {
	if err := checkListener(l); err != nil {
		return err
	}
	if !m.drv.IsSupported() {
		return fmt.Errorf("%w: %s", ErrUnsupported, m.name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.reg.contains(l) {
		return nil
	}

	e := &entry[T]{listener: l}
	e.active.Store(true)
	next := m.reg.with(e)

	if m.reg.len() > 0 {
		m.commitLocked(next)
		monitoring.Diagf("sensormux: %s: listener added (%d listeners)", m.name, next.len())
		return nil
	}

	// Publish before starting so a reading emitted from inside Start reaches
	// the first listener.
	m.publishLocked(next)
	if err := m.startLocked(); err != nil {
		e.active.Store(false)
		m.publishLocked(m.reg)
		monitoring.Opsf("sensormux: %s: %v", m.name, err)
		return err
	}
	m.commitLocked(next)
	m.notifyLocked(Active)
	monitoring.Diagf("sensormux: %s: first listener added, sensor started at %s rate", m.name, m.rate)
	return nil
}

// RemoveListener unregisters l. Removing the last listener stops the sensor.
// Removing a listener that is not registered does nothing. If the sensor
// fails to stop, the listener is still removed and the error wraps
// ErrStopFailed.
func (m *Manager[T]) RemoveListener(l Listener[T]) error {
	if err := checkListener(l); err != nil {
		return err
	}
	if !m.drv.IsSupported() {
		return fmt.Errorf("%w: %s", ErrUnsupported, m.name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, removed := m.reg.without(l)
	if removed == nil {
		return nil
	}
	removed.active.Store(false)
	m.commitLocked(next)

	if next.len() > 0 {
		monitoring.Diagf("sensormux: %s: listener removed (%d listeners)", m.name, next.len())
		return nil
	}

	m.notifyLocked(Idle)
	if err := m.stopLocked(); err != nil {
		monitoring.Opsf("sensormux: %s: %v", m.name, err)
		return err
	}
	monitoring.Diagf("sensormux: %s: last listener removed, sensor stopped", m.name)
	return nil
}

// Deliver fans reading out to a snapshot of the current listeners. It is the
// driver's handler and may be called from any goroutine. It never blocks on
// listeners: each invocation is posted to the delivery executor.
func (m *Manager[T]) Deliver(reading T) {
	m.readings.Add(1)
	snap := *m.snapshot.Load()
	if monitoring.TraceEnabled() {
		monitoring.Tracef("sensormux: %s: reading %+v -> %d listeners", m.name, reading, len(snap))
	}
	for _, e := range snap {
		m.exec.Post(func() { m.invoke(e, reading) })
	}
}

// invoke runs one listener on the delivery goroutine. A listener that fails
// or panics is logged and counted; the others are unaffected.
func (m *Manager[T]) invoke(e *entry[T], reading T) {
	if !e.active.Load() {
		m.skipped.Add(1)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.failed.Add(1)
			monitoring.Opsf("sensormux: %s: listener panicked: %v", m.name, r)
		}
	}()
	if err := e.listener.OnReading(reading); err != nil {
		m.failed.Add(1)
		monitoring.Opsf("sensormux: %s: listener failed: %v", m.name, err)
		return
	}
	m.delivered.Add(1)
}

// Close detaches the manager from its driver, drops every listener and stops
// the sensor if it is running. Later calls to AddListener return ErrClosed.
func (m *Manager[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.drv.SetHandler(nil)

	wasActive := m.reg.len() > 0
	for _, e := range m.reg.list {
		e.active.Store(false)
	}
	m.commitLocked(registry[T]{})
	if wasActive {
		m.notifyLocked(Idle)
	}

	if err := m.stopLocked(); err != nil {
		return err
	}
	monitoring.Diagf("sensormux: %s: closed", m.name)
	return nil
}

func (m *Manager[T]) commitLocked(next registry[T]) {
	m.reg = next
	m.publishLocked(next)
}

func (m *Manager[T]) publishLocked(r registry[T]) {
	list := r.list
	if list == nil {
		list = []*entry[T]{}
	}
	m.snapshot.Store(&list)
}

func (m *Manager[T]) startLocked() error {
	if m.drv.IsMonitoring() {
		return nil
	}
	if err := m.drv.Start(m.rate); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, m.name, err)
	}
	m.starts.Add(1)
	return nil
}

func (m *Manager[T]) stopLocked() error {
	if !m.drv.IsMonitoring() {
		return nil
	}
	if err := m.drv.Stop(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStopFailed, m.name, err)
	}
	m.stops.Add(1)
	return nil
}

func (m *Manager[T]) notifyLocked(s State) {
	if m.stateHook != nil {
		m.stateHook(m.name, s)
	}
}

// Status is a point-in-time summary of a manager, shaped for the debug
// routes.
type Status struct {
	Name       string `json:"name"`
	Rate       string `json:"rate"`
	State      string `json:"state"`
	Supported  bool   `json:"supported"`
	Monitoring bool   `json:"monitoring"`
	Listeners  int    `json:"listeners"`
	Readings   uint64 `json:"readings"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Skipped    uint64 `json:"skipped"`
	Starts     uint64 `json:"starts"`
	Stops      uint64 `json:"stops"`
}

// Status returns the manager's current counters and state.
func (m *Manager[T]) Status() Status {
	m.mu.Lock()
	listeners := m.reg.len()
	state := m.stateLocked()
	m.mu.Unlock()

	return Status{
		Name:       m.name,
		Rate:       m.rate.String(),
		State:      state.String(),
		Supported:  m.drv.IsSupported(),
		Monitoring: m.drv.IsMonitoring(),
		Listeners:  listeners,
		Readings:   m.readings.Load(),
		Delivered:  m.delivered.Load(),
		Failed:     m.failed.Load(),
		Skipped:    m.skipped.Load(),
		Starts:     m.starts.Load(),
		Stops:      m.stops.Load(),
	}
}
