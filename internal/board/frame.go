package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedFrame is returned by ParseFrame for lines that are neither a
// JSON nor a CSV reading.
var ErrMalformedFrame = errors.New("board: malformed frame")

// Frame is one raw reading reported by the board.
type Frame struct {
	Sensor string    `json:"sensor"`
	Values []float64 `json:"values"`
}

// ParseFrame decodes a line in either of the two formats the board emits:
//
//	{"sensor":"accelerometer","values":[0.01,-0.02,9.81]}
//	accelerometer,0.01,-0.02,9.81
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Frame{}, fmt.Errorf("%w: empty line", ErrMalformedFrame)
	}

	var f Frame
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	} else {
		fields := strings.Split(line, ",")
		f.Sensor = fields[0]
		for _, field := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %q: %v", ErrMalformedFrame, field, err)
			}
			f.Values = append(f.Values, v)
		}
	}

	f.Sensor = strings.ToLower(strings.TrimSpace(f.Sensor))
	if f.Sensor == "" {
		return Frame{}, fmt.Errorf("%w: missing sensor name", ErrMalformedFrame)
	}
	if len(f.Values) == 0 {
		return Frame{}, fmt.Errorf("%w: %s has no values", ErrMalformedFrame, f.Sensor)
	}
	return f, nil
}

// String formats the frame as a JSON line without the trailing newline.
func (f Frame) String() string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf(`{"sensor":%q}`, f.Sensor)
	}
	return string(b)
}

// Command builders for the board's line protocol.

func startCommand(sensor string, hz int) string {
	return fmt.Sprintf("start %s %d", sensor, hz)
}

func stopCommand(sensor string) string {
	return "stop " + sensor
}

// parseCommand splits a command line into its verb, sensor and rate. Rate is
// zero for stop commands.
func parseCommand(line string) (verb, sensor string, hz int, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", 0, fmt.Errorf("board: malformed command %q", line)
	}
	verb, sensor = strings.ToLower(fields[0]), strings.ToLower(fields[1])
	switch verb {
	case "start":
		if len(fields) != 3 {
			return "", "", 0, fmt.Errorf("board: start needs a rate: %q", line)
		}
		hz, err = strconv.Atoi(fields[2])
		if err != nil || hz <= 0 {
			return "", "", 0, fmt.Errorf("board: invalid rate in %q", line)
		}
	case "stop":
		if len(fields) != 2 {
			return "", "", 0, fmt.Errorf("board: malformed command %q", line)
		}
	default:
		return "", "", 0, fmt.Errorf("board: unknown command %q", line)
	}
	return verb, sensor, hz, nil
}
