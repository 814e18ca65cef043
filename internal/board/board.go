// Package board talks to a sensor board over a line-oriented byte stream.
//
// The board reports readings one per line and accepts "start <sensor> <hz>"
// and "stop <sensor>" commands. A single Board multiplexes every sensor on
// the stream: Monitor reads lines and routes each frame to the handler
// registered for its sensor, and a Driver adapts one sensor to
// sensormux.Driver.
package board

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

var (
	// ErrWriteFailed is returned when a command is only partly written.
	ErrWriteFailed = errors.New("board: failed to write to port")
	// ErrUnknownSensor is returned for commands naming a sensor the board
	// does not have.
	ErrUnknownSensor = errors.New("board: unknown sensor")
	// ErrClosed is returned for commands sent after Close.
	ErrClosed = errors.New("board: closed")
)

// Board multiplexes the sensors that share one port.
type Board struct {
	port    Port
	sensors map[string]bool

	commandMu sync.Mutex

	mu         sync.Mutex
	routes     map[string]func([]float64)
	monitoring map[string]bool
	closing    bool

	frames    atomic.Uint64
	unrouted  atomic.Uint64
	malformed atomic.Uint64
}

// New creates a Board on port carrying the named sensors.
func New(port Port, sensors []string) *Board {
	b := &Board{
		port:       port,
		sensors:    make(map[string]bool, len(sensors)),
		routes:     make(map[string]func([]float64)),
		monitoring: make(map[string]bool),
	}
	for _, s := range sensors {
		b.sensors[strings.ToLower(s)] = true
	}
	return b
}

// Sensors returns the sensors the board carries, sorted by name.
func (b *Board) Sensors() []string {
	names := make([]string, 0, len(b.sensors))
	for s := range b.sensors {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether the board carries sensor.
func (b *Board) Supports(sensor string) bool {
	return b.sensors[sensor]
}

// Route installs fn as the receiver of frames for sensor. A nil fn removes
// the route.
func (b *Board) Route(sensor string, fn func(values []float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.routes, sensor)
		return
	}
	b.routes[sensor] = fn
}

// IsMonitoring reports whether sensor has been started and the board has
// not stopped it since.
func (b *Board) IsMonitoring(sensor string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.monitoring[sensor]
}

// Start asks the board to stream sensor at hz readings per second.
func (b *Board) Start(sensor string, hz int) error {
	if !b.sensors[sensor] {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, sensor)
	}
	return b.SendCommand(startCommand(sensor, hz))
}

// Stop asks the board to stop streaming sensor.
func (b *Board) Stop(sensor string) error {
	if !b.sensors[sensor] {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, sensor)
	}
	return b.SendCommand(stopCommand(sensor))
}

// SendCommand writes a command line to the port. A start or stop command for
// a sensor the board carries also updates that sensor's monitoring state,
// whether it came from Start and Stop or was typed in raw.
func (b *Board) SendCommand(command string) error {
	b.mu.Lock()
	closing := b.closing
	b.mu.Unlock()
	if closing {
		return ErrClosed
	}

	b.commandMu.Lock()
	defer b.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n" // ensure command ends with a newline
	}
	n, err := b.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("board: write %q: %w", strings.TrimSpace(command), err)
	}
	if n != len(command) {
		return ErrWriteFailed
	}

	verb, sensor, hz, err := parseCommand(command)
	if err != nil || !b.sensors[sensor] {
		return nil
	}
	b.mu.Lock()
	b.monitoring[sensor] = verb == "start"
	b.mu.Unlock()
	if verb == "start" {
		monitoring.Diagf("board: started %s at %d Hz", sensor, hz)
	} else {
		monitoring.Diagf("board: stopped %s", sensor)
	}
	return nil
}

// Monitor reads lines from the port and routes each frame to its sensor's
// handler until ctx is cancelled, the port reaches EOF or a read fails. When
// it returns every sensor is marked as no longer monitoring, since nothing
// is reading the board any more.
func (b *Board) Monitor(ctx context.Context) error {
	defer b.halt()

	scan := bufio.NewScanner(b.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs on its own goroutine so the loop below can
	// still observe ctx.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if b.isClosing() {
				return nil
			}
			return fmt.Errorf("board: read: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !b.isClosing() {
						return fmt.Errorf("board: read: %w", err)
					}
				default:
				}
				return nil
			}
			if b.isClosing() {
				return nil
			}
			b.dispatch(line)
		}
	}
}

func (b *Board) dispatch(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	f, err := ParseFrame(line)
	if err != nil {
		b.malformed.Add(1)
		monitoring.Diagf("board: %v", err)
		return
	}
	b.frames.Add(1)

	b.mu.Lock()
	fn := b.routes[f.Sensor]
	b.mu.Unlock()
	if fn == nil {
		b.unrouted.Add(1)
		monitoring.Tracef("board: no route for %s", f.Sensor)
		return
	}
	fn(f.Values)
}

func (b *Board) halt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s, on := range b.monitoring {
		if on {
			monitoring.Opsf("board: %s halted: monitor stopped", s)
		}
		b.monitoring[s] = false
	}
}

func (b *Board) isClosing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closing
}

// Close closes the port. A running Monitor returns without error.
func (b *Board) Close() error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil
	}
	b.closing = true
	b.mu.Unlock()
	return b.port.Close()
}

// Stats is a snapshot of the board's line counters.
type Stats struct {
	Sensors    []string        `json:"sensors"`
	Monitoring map[string]bool `json:"monitoring"`
	Frames     uint64          `json:"frames"`
	Unrouted   uint64          `json:"unrouted"`
	Malformed  uint64          `json:"malformed"`
}

// Stats returns the board's counters and per-sensor monitoring state.
func (b *Board) Stats() Stats {
	s := Stats{
		Sensors:    b.Sensors(),
		Monitoring: make(map[string]bool, len(b.sensors)),
		Frames:     b.frames.Load(),
		Unrouted:   b.unrouted.Load(),
		Malformed:  b.malformed.Load(),
	}
	b.mu.Lock()
	for name := range b.sensors {
		s.Monitoring[name] = b.monitoring[name]
	}
	b.mu.Unlock()
	return s
}
