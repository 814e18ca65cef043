// Package config loads the sensorhub configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/sensorhub/internal/board"
	"github.com/banshee-data/sensorhub/internal/sensormux"
	"github.com/banshee-data/sensorhub/internal/sensors"
)

// Sensor board sources.
const (
	SourceSerial = "serial"
	SourceUDP    = "udp"
	SourcePCAP   = "pcap"
	SourceSim    = "sim"
)

// Defaults for fields omitted from the config file.
const (
	DefaultSource      = SourceSim
	DefaultListen      = ":8081"
	DefaultGRPCListen  = ":8082"
	DefaultUDPAddress  = ":5600"
	DefaultPCAPUDPPort = 5600
	DefaultSimInterval = 5 * time.Millisecond
)

// Config is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything the file leaves out.
type Config struct {
	Source       *string            `json:"source,omitempty"`
	SerialPath   *string            `json:"serial_path,omitempty"`
	Serial       *board.PortOptions `json:"serial,omitempty"`
	UDPAddress   *string            `json:"udp_address,omitempty"`
	PCAPFile     *string            `json:"pcap_file,omitempty"`
	PCAPUDPPort  *int               `json:"pcap_udp_port,omitempty"`
	PCAPRealtime *bool              `json:"pcap_realtime,omitempty"`
	Sensors      []string           `json:"sensors,omitempty"`
	Rates        map[string]string  `json:"rates,omitempty"`
	Listen       *string            `json:"listen,omitempty"`
	GRPCListen   *string            `json:"grpc_listen,omitempty"`
	SimInterval  *string            `json:"sim_interval,omitempty"` // duration string like "5ms"
}

// Empty returns a Config with every field unset, so every getter returns its
// default.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	switch c.GetSource() {
	case SourceSerial:
		if c.GetSerialPath() == "" {
			return fmt.Errorf("serial_path is required when source is %q", SourceSerial)
		}
	case SourcePCAP:
		if c.GetPCAPFile() == "" {
			return fmt.Errorf("pcap_file is required when source is %q", SourcePCAP)
		}
	case SourceUDP, SourceSim:
	default:
		return fmt.Errorf("unknown source %q: expected serial, udp, pcap or sim", *c.Source)
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}

	if c.PCAPUDPPort != nil && (*c.PCAPUDPPort <= 0 || *c.PCAPUDPPort > 65535) {
		return fmt.Errorf("pcap_udp_port must be between 1 and 65535, got %d", *c.PCAPUDPPort)
	}

	seen := make(map[sensors.Kind]bool, len(c.Sensors))
	for _, name := range c.Sensors {
		k, err := sensors.ParseKind(name)
		if err != nil {
			return fmt.Errorf("sensors: %w", err)
		}
		if seen[k] {
			return fmt.Errorf("sensors: %s listed twice", k)
		}
		seen[k] = true
	}

	for name, rate := range c.Rates {
		if _, err := sensors.ParseKind(name); err != nil {
			return fmt.Errorf("rates: %w", err)
		}
		if _, err := sensormux.ParseRate(rate); err != nil {
			return fmt.Errorf("rates: %s: %w", name, err)
		}
	}

	if c.SimInterval != nil && *c.SimInterval != "" {
		d, err := time.ParseDuration(*c.SimInterval)
		if err != nil {
			return fmt.Errorf("invalid sim_interval '%s': %w", *c.SimInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("sim_interval must be positive, got %s", d)
		}
	}

	return nil
}

// GetSource returns the board source or the default.
func (c *Config) GetSource() string {
	if c.Source == nil || *c.Source == "" {
		return DefaultSource
	}
	return *c.Source
}

// GetSerialPath returns the serial device path, empty if unset.
func (c *Config) GetSerialPath() string {
	if c.SerialPath == nil {
		return ""
	}
	return *c.SerialPath
}

// GetSerial returns the serial port options; zero values are defaulted by
// board.PortOptions.Normalize.
func (c *Config) GetSerial() board.PortOptions {
	if c.Serial == nil {
		return board.PortOptions{}
	}
	return *c.Serial
}

// GetUDPAddress returns the UDP listen address or the default.
func (c *Config) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return DefaultUDPAddress
	}
	return *c.UDPAddress
}

// GetPCAPFile returns the capture path, empty if unset.
func (c *Config) GetPCAPFile() string {
	if c.PCAPFile == nil {
		return ""
	}
	return *c.PCAPFile
}

// GetPCAPUDPPort returns the UDP port replayed from the capture or the
// default.
func (c *Config) GetPCAPUDPPort() int {
	if c.PCAPUDPPort == nil {
		return DefaultPCAPUDPPort
	}
	return *c.PCAPUDPPort
}

// GetPCAPRealtime reports whether captures are replayed at recorded speed.
func (c *Config) GetPCAPRealtime() bool {
	if c.PCAPRealtime == nil {
		return true // default
	}
	return *c.PCAPRealtime
}

// GetSensors returns the sensor kinds present on the board, all of them if
// unset. Call Validate first; unknown names are skipped.
func (c *Config) GetSensors() []sensors.Kind {
	if len(c.Sensors) == 0 {
		return append([]sensors.Kind(nil), sensors.AllKinds...)
	}
	kinds := make([]sensors.Kind, 0, len(c.Sensors))
	for _, name := range c.Sensors {
		if k, err := sensors.ParseKind(name); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// GetRates returns the per-kind rate overrides. Kinds without an override
// are absent and use their default rate.
func (c *Config) GetRates() map[sensors.Kind]sensormux.Rate {
	rates := make(map[sensors.Kind]sensormux.Rate, len(c.Rates))
	for name, s := range c.Rates {
		k, err := sensors.ParseKind(name)
		if err != nil {
			continue
		}
		r, err := sensormux.ParseRate(s)
		if err != nil {
			continue
		}
		rates[k] = r
	}
	return rates
}

// GetListen returns the debug HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC health listen address or the default.
func (c *Config) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return DefaultGRPCListen
	}
	return *c.GRPCListen
}

// GetSimInterval returns the simulator tick interval or the default.
func (c *Config) GetSimInterval() time.Duration {
	if c.SimInterval == nil || *c.SimInterval == "" {
		return DefaultSimInterval
	}
	d, err := time.ParseDuration(*c.SimInterval)
	if err != nil || d <= 0 {
		return DefaultSimInterval // default on parse error
	}
	return d
}
