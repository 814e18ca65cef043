// Package sensors binds sensormux managers to the concrete sensor kinds of a
// device: accelerometer, gyroscope, magnetometer, barometer, compass and
// orientation sensor.
package sensors

import (
	"errors"

	"tailscale.com/tsweb"

	"github.com/banshee-data/sensorhub/internal/board"
	"github.com/banshee-data/sensorhub/internal/sensormux"
)

// NewAccelerometer creates the accelerometer manager. Its usual rate is
// Accelerometer.DefaultRate(), the UI rate.
func NewAccelerometer(drv sensormux.Driver[AccelerometerReading], exec sensormux.Executor, rate sensormux.Rate) *sensormux.Manager[AccelerometerReading] {
	return sensormux.New(Accelerometer.String(), drv, rate, exec)
}

// NewGyroscope creates the gyroscope manager.
func NewGyroscope(drv sensormux.Driver[GyroscopeReading], exec sensormux.Executor, rate sensormux.Rate) *sensormux.Manager[GyroscopeReading] {
	return sensormux.New(Gyroscope.String(), drv, rate, exec)
}

// NewMagnetometer creates the magnetometer manager.
func NewMagnetometer(drv sensormux.Driver[MagnetometerReading], exec sensormux.Executor, rate sensormux.Rate) *sensormux.Manager[MagnetometerReading] {
	return sensormux.New(Magnetometer.String(), drv, rate, exec)
}

// NewBarometer creates the barometer manager. Pressure is usually sampled
// at the default rate.
func NewBarometer(drv sensormux.Driver[BarometerReading], exec sensormux.Executor, rate sensormux.Rate) *sensormux.Manager[BarometerReading] {
	return sensormux.New(Barometer.String(), drv, rate, exec)
}

// NewCompass creates the compass manager.
func NewCompass(drv sensormux.Driver[CompassReading], exec sensormux.Executor, rate sensormux.Rate) *sensormux.Manager[CompassReading] {
	return sensormux.New(Compass.String(), drv, rate, exec)
}

// NewOrientation creates the orientation sensor manager.
func NewOrientation(drv sensormux.Driver[OrientationReading], exec sensormux.Executor, rate sensormux.Rate) *sensormux.Manager[OrientationReading] {
	return sensormux.New(Orientation.String(), drv, rate, exec)
}

// Drivers holds one hardware driver per sensor kind.
type Drivers struct {
	Accelerometer sensormux.Driver[AccelerometerReading]
	Gyroscope     sensormux.Driver[GyroscopeReading]
	Magnetometer  sensormux.Driver[MagnetometerReading]
	Barometer     sensormux.Driver[BarometerReading]
	Compass       sensormux.Driver[CompassReading]
	Orientation   sensormux.Driver[OrientationReading]
}

// DisabledDrivers returns drivers for a device without any sensors.
func DisabledDrivers() Drivers {
	return Drivers{
		Accelerometer: sensormux.NewDisabledDriver[AccelerometerReading](),
		Gyroscope:     sensormux.NewDisabledDriver[GyroscopeReading](),
		Magnetometer:  sensormux.NewDisabledDriver[MagnetometerReading](),
		Barometer:     sensormux.NewDisabledDriver[BarometerReading](),
		Compass:       sensormux.NewDisabledDriver[CompassReading](),
		Orientation:   sensormux.NewDisabledDriver[OrientationReading](),
	}
}

// BoardDrivers returns drivers for the sensors on b. Kinds the board does
// not carry get a disabled driver.
func BoardDrivers(b *board.Board) Drivers {
	d := DisabledDrivers()
	if b.Supports(Accelerometer.String()) {
		d.Accelerometer = board.NewDriver(b, Accelerometer.String(), DecodeAccelerometer)
	}
	if b.Supports(Gyroscope.String()) {
		d.Gyroscope = board.NewDriver(b, Gyroscope.String(), DecodeGyroscope)
	}
	if b.Supports(Magnetometer.String()) {
		d.Magnetometer = board.NewDriver(b, Magnetometer.String(), DecodeMagnetometer)
	}
	if b.Supports(Barometer.String()) {
		d.Barometer = board.NewDriver(b, Barometer.String(), DecodeBarometer)
	}
	if b.Supports(Compass.String()) {
		d.Compass = board.NewDriver(b, Compass.String(), DecodeCompass)
	}
	if b.Supports(Orientation.String()) {
		d.Orientation = board.NewDriver(b, Orientation.String(), DecodeOrientation)
	}
	return d
}

// Managed is the reading-independent surface of a sensormux.Manager.
type Managed interface {
	Name() string
	IsSupported() bool
	IsMonitoring() bool
	State() sensormux.State
	Status() sensormux.Status
	SetStateHook(f func(name string, s sensormux.State))
	AttachDebug(debug *tsweb.DebugHandler)
	Close() error
}

// Hub owns the manager of every sensor kind. It is built once by the
// composition root and lives for the life of the process.
type Hub struct {
	Accelerometer *sensormux.Manager[AccelerometerReading]
	Gyroscope     *sensormux.Manager[GyroscopeReading]
	Magnetometer  *sensormux.Manager[MagnetometerReading]
	Barometer     *sensormux.Manager[BarometerReading]
	Compass       *sensormux.Manager[CompassReading]
	Orientation   *sensormux.Manager[OrientationReading]
}

// NewHub creates a manager per kind delivering on exec. Kinds missing from
// rates use their default rate.
func NewHub(d Drivers, exec sensormux.Executor, rates map[Kind]sensormux.Rate) *Hub {
	rate := func(k Kind) sensormux.Rate {
		if r, ok := rates[k]; ok {
			return r
		}
		return k.DefaultRate()
	}
	return &Hub{
		Accelerometer: NewAccelerometer(d.Accelerometer, exec, rate(Accelerometer)),
		Gyroscope:     NewGyroscope(d.Gyroscope, exec, rate(Gyroscope)),
		Magnetometer:  NewMagnetometer(d.Magnetometer, exec, rate(Magnetometer)),
		Barometer:     NewBarometer(d.Barometer, exec, rate(Barometer)),
		Compass:       NewCompass(d.Compass, exec, rate(Compass)),
		Orientation:   NewOrientation(d.Orientation, exec, rate(Orientation)),
	}
}

// Managers returns every manager in AllKinds order.
func (h *Hub) Managers() []Managed {
	return []Managed{h.Accelerometer, h.Gyroscope, h.Magnetometer, h.Barometer, h.Compass, h.Orientation}
}

// Manager returns the manager for k, or false if k is not a known kind.
func (h *Hub) Manager(k Kind) (Managed, bool) {
	ms := h.Managers()
	if k < 0 || int(k) >= len(ms) {
		return nil, false
	}
	return ms[k], true
}

// Statuses returns the status of every manager.
func (h *Hub) Statuses() []sensormux.Status {
	ms := h.Managers()
	out := make([]sensormux.Status, len(ms))
	for i, m := range ms {
		out[i] = m.Status()
	}
	return out
}

// SetStateHook installs f on every manager.
func (h *Hub) SetStateHook(f func(name string, s sensormux.State)) {
	for _, m := range h.Managers() {
		m.SetStateHook(f)
	}
}

// AttachDebug registers every manager's debug endpoints.
func (h *Hub) AttachDebug(debug *tsweb.DebugHandler) {
	for _, m := range h.Managers() {
		m.AttachDebug(debug)
	}
}

// Close closes every manager, stopping any sensor still running.
func (h *Hub) Close() error {
	var errs []error
	for _, m := range h.Managers() {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
