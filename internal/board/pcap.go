//go:build pcap
// +build pcap

package board

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// pcapPort replays the UDP payloads of a capture as a read-only Port.
// Commands are accepted and discarded, since a recording cannot be steered.
type pcapPort struct {
	handle   *pcap.Handle
	source   *gopacket.PacketSource
	realtime bool

	mu      sync.Mutex
	pending []byte
	last    time.Time
	packets int
	closed  bool
}

// OpenPCAP opens a capture of a board streaming to udpPort. With realtime
// set, payloads are paced by their capture timestamps; otherwise they are
// read as fast as the consumer keeps up. This function is only available
// when building with the 'pcap' build tag.
func OpenPCAP(file string, udpPort int, realtime bool) (Port, error) {
	handle, err := pcap.OpenOffline(file)
	if err != nil {
		return nil, fmt.Errorf("board: open PCAP file %s: %w", file, err)
	}

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("board: set BPF filter %q: %w", filter, err)
	}
	monitoring.Diagf("board: replaying %s (%s)", file, filter)

	return &pcapPort{
		handle:   handle,
		source:   gopacket.NewPacketSource(handle, handle.LinkType()),
		realtime: realtime,
	}, nil
}

func (p *pcapPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) == 0 {
		if p.closed {
			return 0, io.EOF
		}
		packet, err := p.source.NextPacket()
		if err == io.EOF {
			monitoring.Diagf("board: PCAP replay complete: %d packets", p.packets)
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("board: read PCAP: %w", err)
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		p.packets++

		if ts := packet.Metadata().Timestamp; p.realtime {
			if !p.last.IsZero() && ts.After(p.last) {
				p.mu.Unlock()
				time.Sleep(ts.Sub(p.last))
				p.mu.Lock()
			}
			p.last = ts
		}

		p.pending = append([]byte(nil), udp.Payload...)
		if p.pending[len(p.pending)-1] != '\n' {
			p.pending = append(p.pending, '\n')
		}
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *pcapPort) Write(b []byte) (int, error) {
	monitoring.Tracef("board: PCAP replay ignoring command %q", b)
	return len(b), nil
}

func (p *pcapPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.handle.Close()
	}
	return nil
}
