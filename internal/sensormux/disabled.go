package sensormux

// DisabledDriver stands in for a sensor the device does not have. It is
// never supported, so managers built on it reject every listener with
// ErrUnsupported without touching any hardware.
type DisabledDriver[T any] struct{}

// NewDisabledDriver returns a driver for an absent sensor.
func NewDisabledDriver[T any]() DisabledDriver[T] { return DisabledDriver[T]{} }

func (DisabledDriver[T]) IsSupported() bool  { return false }
func (DisabledDriver[T]) IsMonitoring() bool { return false }
func (DisabledDriver[T]) Start(Rate) error   { return ErrUnsupported }
func (DisabledDriver[T]) Stop() error        { return nil }
func (DisabledDriver[T]) SetHandler(func(T)) {}
