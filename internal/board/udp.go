package board

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// maxDatagram is the largest UDP payload a board can send.
const maxDatagram = 65535

// UDPSocket is the subset of *net.UDPConn used by UDPPort, so tests can
// substitute a fake socket.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// UDPPort is a Port over UDP. Each datagram carries one or more reading
// lines. Commands are sent back to the address of the most recent datagram,
// which is the board's.
type UDPPort struct {
	sock UDPSocket
	buf  []byte

	mu      sync.Mutex
	pending []byte
	peer    *net.UDPAddr
}

// ListenUDP listens for a board streaming to addr, e.g. ":5600".
func ListenUDP(addr string) (*UDPPort, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("board: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("board: listen %s: %w", addr, err)
	}
	return NewUDPPort(conn), nil
}

// NewUDPPort wraps an open socket.
func NewUDPPort(sock UDPSocket) *UDPPort {
	return &UDPPort{sock: sock, buf: make([]byte, maxDatagram)}
}

// LocalAddr returns the address the port listens on.
func (p *UDPPort) LocalAddr() net.Addr { return p.sock.LocalAddr() }

// Read implements io.Reader. Datagrams are newline-terminated if the board
// did not terminate them, so a line never spans two datagrams.
func (p *UDPPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	for {
		n, addr, err := p.sock.ReadFromUDP(p.buf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			continue
		}
		data := append([]byte(nil), p.buf[:n]...)
		if data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}

		p.mu.Lock()
		p.peer = addr
		copied := copy(b, data)
		p.pending = data[copied:]
		p.mu.Unlock()
		return copied, nil
	}
}

// Write implements io.Writer by sending b to the board.
func (p *UDPPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return 0, errors.New("board: no board has reported on this UDP port yet")
	}
	return p.sock.WriteToUDP(b, peer)
}

// Close implements io.Closer.
func (p *UDPPort) Close() error {
	return p.sock.Close()
}
