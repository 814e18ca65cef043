package board

import (
	"io"
)

// Port is the byte stream to a sensor board. Readings arrive as
// newline-terminated lines and commands are written back as lines. Serial
// devices, UDP sockets, capture replays and the simulator all present this
// interface, so unit tests can run without real hardware.
type Port interface {
	io.ReadWriter
	io.Closer
}
