package sensors

import (
	"fmt"
	"strings"

	"github.com/banshee-data/sensorhub/internal/board"
	"github.com/banshee-data/sensorhub/internal/sensormux"
)

// Kind identifies one of the sensors the hub manages.
type Kind int

const (
	Accelerometer Kind = iota
	Gyroscope
	Magnetometer
	Barometer
	Compass
	Orientation
)

// AllKinds lists every sensor kind in display order.
var AllKinds = []Kind{Accelerometer, Gyroscope, Magnetometer, Barometer, Compass, Orientation}

var kindNames = [...]string{
	Accelerometer: "accelerometer",
	Gyroscope:     "gyroscope",
	Magnetometer:  "magnetometer",
	Barometer:     "barometer",
	Compass:       "compass",
	Orientation:   "orientation",
}

var kindTitles = [...]string{
	Accelerometer: "Accelerometer",
	Gyroscope:     "Gyroscope",
	Magnetometer:  "Magnetometer",
	Barometer:     "Barometer",
	Compass:       "Compass",
	Orientation:   "Orientation Sensor",
}

// String returns the wire name used on the board and in config files.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Title returns the human-readable name used in status text.
func (k Kind) Title() string {
	if k < 0 || int(k) >= len(kindTitles) {
		return k.String()
	}
	return kindTitles[k]
}

// DefaultRate is the rate a kind's manager uses unless configured otherwise.
// Pressure changes slowly, so the barometer runs at the default rate and
// everything else at the UI rate.
func (k Kind) DefaultRate() sensormux.Rate {
	if k == Barometer {
		return sensormux.RateDefault
	}
	return sensormux.RateUI
}

// ParseKind converts a wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor %q", s)
}

// simShapes gives each kind a plausible synthetic signal.
var simShapes = [...]board.SimSensor{
	Accelerometer: {Arity: 3, Amplitude: 0.2},
	Gyroscope:     {Arity: 3, Amplitude: 0.5},
	Magnetometer:  {Arity: 3, Offset: 30, Amplitude: 20},
	Barometer:     {Arity: 1, Offset: 1013.25, Amplitude: 5},
	Compass:       {Arity: 1, Offset: 180, Amplitude: 179},
	Orientation:   {Arity: 4, Amplitude: 1},
}

// SimSensors returns the simulator configuration for kinds.
func SimSensors(kinds []Kind) map[string]board.SimSensor {
	m := make(map[string]board.SimSensor, len(kinds))
	for _, k := range kinds {
		m[k.String()] = simShapes[k]
	}
	return m
}

// Names returns the wire names of kinds.
func Names(kinds []Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
