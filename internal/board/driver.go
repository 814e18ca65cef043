package board

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sensorhub/internal/monitoring"
	"github.com/banshee-data/sensorhub/internal/sensormux"
)

// Decoder turns the raw values of a frame into a typed reading.
type Decoder[T any] func(values []float64) (T, error)

// Driver is one sensor on a Board, exposed as a sensormux.Driver.
type Driver[T any] struct {
	board  *Board
	sensor string
	decode Decoder[T]

	mu      sync.Mutex
	handler func(T)

	rejected atomic.Uint64
}

var _ sensormux.Driver[struct{}] = (*Driver[struct{}])(nil)

// NewDriver routes the board's frames for sensor through decode.
func NewDriver[T any](b *Board, sensor string, decode Decoder[T]) *Driver[T] {
	d := &Driver[T]{
		board:  b,
		sensor: sensor,
		decode: decode,
	}
	b.Route(sensor, d.handle)
	return d
}

// IsSupported implements sensormux.Driver.
func (d *Driver[T]) IsSupported() bool { return d.board.Supports(d.sensor) }

// IsMonitoring implements sensormux.Driver.
func (d *Driver[T]) IsMonitoring() bool { return d.board.IsMonitoring(d.sensor) }

// Start implements sensormux.Driver.
func (d *Driver[T]) Start(rate sensormux.Rate) error {
	return d.board.Start(d.sensor, rate.Hz())
}

// Stop implements sensormux.Driver.
func (d *Driver[T]) Stop() error {
	return d.board.Stop(d.sensor)
}

// SetHandler implements sensormux.Driver.
func (d *Driver[T]) SetHandler(h func(T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Rejected returns how many frames failed to decode.
func (d *Driver[T]) Rejected() uint64 { return d.rejected.Load() }

func (d *Driver[T]) handle(values []float64) {
	reading, err := d.decode(values)
	if err != nil {
		d.rejected.Add(1)
		monitoring.Diagf("board: %s: %v", d.sensor, err)
		return
	}
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(reading)
	}
}
