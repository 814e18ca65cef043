package board

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// TestablePort implements Port with configurable behaviour for testing.
// Reads block until data is added or the port is closed, like a quiet
// serial line.
type TestablePort struct {
	mu sync.Mutex

	// readBuffer holds data to be returned by Read calls
	readBuffer *bytes.Buffer

	// writeBuffer captures data written to the port
	writeBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by every Write call while set
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// eof makes Read return io.EOF once the buffer drains
	eof bool

	// WriteCalls records the number of Write calls
	WriteCalls int

	readCond *sync.Cond
}

// NewTestablePort creates an empty, open TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		readBuffer:  bytes.NewBuffer(nil),
		writeBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns buffered data, waiting for more while the buffer is empty.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.ReadError != nil {
			err := p.ReadError
			p.ReadError = nil
			return 0, err
		}
		if p.readBuffer.Len() > 0 {
			return p.readBuffer.Read(b)
		}
		if p.Closed {
			return 0, errors.New("port closed")
		}
		if p.eof {
			return 0, io.EOF
		}
		p.readCond.Wait()
	}
}

// Write captures b, or fails as configured.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++
	if p.Closed {
		return 0, errors.New("port closed")
	}
	if p.WriteError != nil {
		return 0, p.WriteError
	}
	if p.ShortWrite && len(b) > 0 {
		return p.writeBuffer.Write(b[:len(b)-1])
	}
	return p.writeBuffer.Write(b)
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readBuffer.Write(data)
	p.readCond.Broadcast()
}

// FailRead makes the next Read return err.
func (p *TestablePort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadError = err
	p.readCond.Broadcast()
}

// SetWriteError changes WriteError under the port lock.
func (p *TestablePort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteError = err
}

// EOF makes Read return io.EOF once the buffered data is consumed.
func (p *TestablePort) EOF() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.eof = true
	p.readCond.Broadcast()
}

// GetWrittenData returns all data written to the port.
func (p *TestablePort) GetWrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writeBuffer.String()
}
