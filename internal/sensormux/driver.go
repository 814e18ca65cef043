package sensormux

import (
	"fmt"
	"strings"
	"time"
)

// Driver is the hardware side of one sensor kind. Implementations are
// expected to make Start and Stop synchronous and fast; the manager calls
// them while holding its lock.
type Driver[T any] interface {
	// IsSupported reports whether the hardware exists on this device.
	IsSupported() bool
	// IsMonitoring reports whether the hardware is currently started.
	IsMonitoring() bool
	// Start begins sampling at the given rate.
	Start(rate Rate) error
	// Stop ends sampling.
	Stop() error
	// SetHandler installs the callback invoked for every raw reading. A nil
	// handler detaches the previous one.
	SetHandler(h func(T))
}

// Executor is the delivery context listeners run on. Post must not block.
type Executor interface {
	Post(f func())
}

// Rate selects how often the hardware samples.
type Rate int

const (
	// RateDefault is the platform's default rate, suited to slow-moving
	// values such as pressure.
	RateDefault Rate = iota
	// RateUI is tuned for driving a user interface.
	RateUI
	// RateGame is a high rate for games.
	RateGame
	// RateFastest is the fastest rate the hardware supports.
	RateFastest
)

// Hz returns the nominal sampling frequency for the rate.
func (r Rate) Hz() int {
	switch r {
	case RateUI:
		return 60
	case RateGame:
		return 100
	case RateFastest:
		return 200
	default:
		return 5
	}
}

// Interval returns the nominal time between readings.
func (r Rate) Interval() time.Duration {
	return time.Second / time.Duration(r.Hz())
}

func (r Rate) String() string {
	switch r {
	case RateDefault:
		return "default"
	case RateUI:
		return "ui"
	case RateGame:
		return "game"
	case RateFastest:
		return "fastest"
	default:
		return fmt.Sprintf("Rate(%d)", int(r))
	}
}

// ParseRate converts a configuration string to a Rate.
func ParseRate(s string) (Rate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default", "normal":
		return RateDefault, nil
	case "ui":
		return RateUI, nil
	case "game":
		return RateGame, nil
	case "fastest":
		return RateFastest, nil
	default:
		return RateDefault, fmt.Errorf("unknown sensor rate %q: expected default, ui, game or fastest", s)
	}
}
