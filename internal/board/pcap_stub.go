//go:build !pcap
// +build !pcap

package board

import "errors"

// ErrPCAPDisabled is returned by OpenPCAP in builds without the pcap tag.
var ErrPCAPDisabled = errors.New("board: PCAP support not enabled: rebuild with -tags=pcap to enable PCAP replay")

// OpenPCAP is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP replay.
func OpenPCAP(file string, udpPort int, realtime bool) (Port, error) {
	return nil, ErrPCAPDisabled
}
