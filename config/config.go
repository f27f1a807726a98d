package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Supported bus adapters.
const (
	AdapterPeriph  = "periph"
	AdapterGobot   = "gobot"
	AdapterMCP2221 = "mcp2221"
	AdapterSim     = "sim"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config describes how the CLI reaches the sensor.
type Config struct {
	// Adapter is one of periph, gobot, mcp2221 or sim.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name (e.g. /dev/i2c-1 or "1"); empty opens the first bus.
	Device string `yaml:"device"`
	// Bus is the gobot bus number.
	Bus         int    `yaml:"bus"`
	Address     uint8  `yaml:"address"`
	FrequencyHz int64  `yaml:"frequency_hz"`
	// AlertPin is a periph GPIO name, or gp0..gp3 with the mcp2221 adapter.
	AlertPin     string        `yaml:"alert_pin"`
	Debug        bool          `yaml:"debug"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func Default() Config {
	return Config{
		Adapter:      AdapterPeriph,
		Address:      0x48,
		FrequencyHz:  400_000,
		PollInterval: time.Second,
	}
}

// Load reads a YAML config file on top of the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file '%s': %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("error parsing YAML from '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config file '%s': %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterPeriph, AdapterGobot, AdapterMCP2221, AdapterSim:
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalidConfig, c.Adapter)
	}
	// 7-bit addresses outside the reserved ranges
	if c.Address < 0x08 || c.Address > 0x77 {
		return fmt.Errorf("%w: address %#02x out of range", ErrInvalidConfig, c.Address)
	}
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("%w: frequency %d Hz", ErrInvalidConfig, c.FrequencyHz)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval %s", ErrInvalidConfig, c.PollInterval)
	}
	if c.Bus < 0 {
		return fmt.Errorf("%w: bus %d", ErrInvalidConfig, c.Bus)
	}
	return nil
}

func (c Config) Frequency() physic.Frequency {
	return physic.Frequency(c.FrequencyHz) * physic.Hertz
}
