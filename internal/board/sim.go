package board

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/sensorhub/internal/monitoring"
	"github.com/banshee-data/sensorhub/internal/timeutil"
)

// SimSensor shapes the synthetic signal of one simulated sensor: Arity
// values per reading, each a sine wave of Amplitude around Offset.
type SimSensor struct {
	Arity     int
	Offset    float64
	Amplitude float64
}

// SimulatedPort is a Port that behaves like a board without hardware. It
// honours start and stop commands and, on every clock tick, emits a JSON
// frame for each started sensor whose rate is due.
type SimulatedPort struct {
	clock   timeutil.Clock
	ticker  timeutil.Ticker
	sensors map[string]SimSensor
	epoch   time.Time

	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	started  map[string]time.Duration
	lastEmit map[string]time.Time
	commands []string

	done      chan struct{}
	closeOnce sync.Once
}

// NewSimulatedPort starts a simulated board that checks for due readings
// every interval.
func NewSimulatedPort(clock timeutil.Clock, interval time.Duration, sensors map[string]SimSensor) *SimulatedPort {
	pr, pw := io.Pipe()
	p := &SimulatedPort{
		clock:    clock,
		ticker:   clock.NewTicker(interval),
		sensors:  sensors,
		epoch:    clock.Now(),
		pr:       pr,
		pw:       pw,
		started:  make(map[string]time.Duration),
		lastEmit: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *SimulatedPort) run() {
	for {
		select {
		case <-p.done:
			return
		case now := <-p.ticker.C():
			out := p.frames(now)
			if len(out) == 0 {
				continue
			}
			if _, err := p.pw.Write(out); err != nil {
				return
			}
		}
	}
}

// frames renders the readings due at now.
func (p *SimulatedPort) frames(now time.Time) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var buf bytes.Buffer
	for _, name := range sortedKeys(p.started) {
		period := p.started[name]
		if last, ok := p.lastEmit[name]; ok && now.Sub(last) < period {
			continue
		}
		p.lastEmit[name] = now

		shape := p.sensors[name]
		t := now.Sub(p.epoch).Seconds()
		values := make([]float64, shape.Arity)
		for i := range values {
			values[i] = shape.Offset + shape.Amplitude*math.Sin(t+float64(i)*math.Pi/3)
		}
		buf.WriteString(Frame{Sensor: name, Values: values}.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Read implements io.Reader.
func (p *SimulatedPort) Read(b []byte) (int, error) {
	return p.pr.Read(b)
}

// Write implements io.Writer. Each line must be a start or stop command for
// a simulated sensor.
func (p *SimulatedPort) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, io.ErrClosedPipe
	default:
	}

	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		verb, sensor, hz, err := parseCommand(string(line))
		if err != nil {
			return 0, err
		}
		if _, ok := p.sensors[sensor]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownSensor, sensor)
		}

		p.mu.Lock()
		p.commands = append(p.commands, string(line))
		switch verb {
		case "start":
			p.started[sensor] = time.Second / time.Duration(hz)
			delete(p.lastEmit, sensor)
		case "stop":
			delete(p.started, sensor)
		}
		p.mu.Unlock()
		monitoring.Tracef("board: simulator: %s", line)
	}
	return len(b), nil
}

// Commands returns every command the simulator has accepted.
func (p *SimulatedPort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

// Close stops the simulator. Pending reads return io.EOF.
func (p *SimulatedPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.ticker.Stop()
		p.pw.Close()
	})
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
