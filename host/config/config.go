// Package config loads the host tool configuration from a JSON or YAML file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"iox16/core"
	"iox16/host/bus"
	"iox16/host/serial"
)

// Config is the complete host configuration.
type Config struct {
	Port     PortConfig     `json:"port" yaml:"port"`
	Bus      BusConfig      `json:"bus" yaml:"bus"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Simulate SimulateConfig `json:"simulate" yaml:"simulate"`
}

// PortConfig selects the serial adapter.
type PortConfig struct {
	Device        string `json:"device" yaml:"device"`
	Baud          int    `json:"baud" yaml:"baud"`
	Backend       string `json:"backend" yaml:"backend"`
	RTSTransmit   bool   `json:"rts_transmit" yaml:"rts_transmit"`
	ReadTimeoutMS int    `json:"read_timeout_ms" yaml:"read_timeout_ms"`
}

// BusConfig tunes master transactions.
type BusConfig struct {
	TimeoutMS     int  `json:"timeout_ms" yaml:"timeout_ms"`
	Attempts      uint `json:"attempts" yaml:"attempts"`
	RetryDelayMS  int  `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	MinIntervalMS int  `json:"min_interval_ms" yaml:"min_interval_ms"`
}

// FileConfig configures log file rotation.
type FileConfig struct {
	Filename   string `json:"filename" yaml:"filename"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// LoggingConfig sets the log level, encoding and optional file output.
type LoggingConfig struct {
	Level  string     `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string     `json:"format" yaml:"format"` // console or json
	File   FileConfig `json:"file" yaml:"file"`
}

// SimulateConfig describes the board run by the simulate command.
type SimulateConfig struct {
	Address        int    `json:"address" yaml:"address"` // -1 uses the stored settings
	Name           string `json:"name" yaml:"name"`
	SettingsFile   string `json:"settings_file" yaml:"settings_file"`
	MetricsAddr    string `json:"metrics_addr" yaml:"metrics_addr"`
	Loopback       bool   `json:"loopback" yaml:"loopback"`
	SamplePeriodUS uint32 `json:"sample_period_us" yaml:"sample_period_us"`
	TurnaroundUS   uint32 `json:"turnaround_us" yaml:"turnaround_us"`
	Preamble       int    `json:"preamble" yaml:"preamble"`
	Debug          bool   `json:"debug" yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Simulate: SimulateConfig{Address: core.AddressFromSettings}}
	applyDefaults(cfg)
	return cfg
}

// Load parses configuration data. format is "json" or "yaml"; an empty
// format is treated as YAML, which also accepts JSON documents.
func Load(data []byte, format string) (*Config, error) {
	cfg := &Config{Simulate: SimulateConfig{Address: core.AddressFromSettings}}

	var err error
	switch strings.ToLower(format) {
	case "json":
		err = json.Unmarshal(data, cfg)
	case "yaml", "yml", "":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a configuration file, choosing the format from its
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format != "json" {
		format = "yaml"
	}
	return Load(data, format)
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	sp := serial.DefaultConfig(cfg.Port.Device)
	if cfg.Port.Baud == 0 {
		cfg.Port.Baud = sp.Baud
	}
	if cfg.Port.Backend == "" {
		cfg.Port.Backend = sp.Backend
	}
	if cfg.Port.ReadTimeoutMS == 0 {
		cfg.Port.ReadTimeoutMS = sp.ReadTimeout
	}

	bc := bus.DefaultConfig()
	if cfg.Bus.TimeoutMS == 0 {
		cfg.Bus.TimeoutMS = int(bc.Timeout / time.Millisecond)
	}
	if cfg.Bus.Attempts == 0 {
		cfg.Bus.Attempts = bc.Attempts
	}
	if cfg.Bus.RetryDelayMS == 0 {
		cfg.Bus.RetryDelayMS = int(bc.RetryDelay / time.Millisecond)
	}
	if cfg.Bus.MinIntervalMS == 0 {
		cfg.Bus.MinIntervalMS = int(bc.MinInterval / time.Millisecond)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.File.Filename != "" {
		if cfg.Logging.File.MaxSizeMB == 0 {
			cfg.Logging.File.MaxSizeMB = 10
		}
		if cfg.Logging.File.MaxBackups == 0 {
			cfg.Logging.File.MaxBackups = 3
		}
	}

	fw := core.DefaultConfig()
	if cfg.Simulate.Name == "" {
		cfg.Simulate.Name = fw.Name
	}
	if cfg.Simulate.SamplePeriodUS == 0 {
		cfg.Simulate.SamplePeriodUS = fw.SamplePeriod
	}
	if cfg.Simulate.MetricsAddr == "" {
		cfg.Simulate.MetricsAddr = ":9116"
	}
}

// Validate rejects values the bus cannot use.
func (c *Config) Validate() error {
	if c.Port.Baud < 1200 || c.Port.Baud > 4000000 {
		return fmt.Errorf("baud rate %d out of range 1200..4000000", c.Port.Baud)
	}
	if c.Port.Backend != serial.BackendTarm && c.Port.Backend != serial.BackendBugst {
		return fmt.Errorf("unknown serial backend %q", c.Port.Backend)
	}
	if c.Simulate.Address < core.AddressFromSettings || c.Simulate.Address > 255 {
		return fmt.Errorf("simulated address %d out of range", c.Simulate.Address)
	}
	if len(c.Simulate.Name) > 32 {
		return fmt.Errorf("board name longer than 32 bytes")
	}
	return nil
}

// SerialConfig returns the port settings.
func (c *Config) SerialConfig() *serial.Config {
	return &serial.Config{
		Device:      c.Port.Device,
		Baud:        c.Port.Baud,
		ReadTimeout: c.Port.ReadTimeoutMS,
		Backend:     c.Port.Backend,
		RTSTransmit: c.Port.RTSTransmit,
	}
}

// MasterConfig returns the transaction settings.
func (c *Config) MasterConfig() bus.Config {
	return bus.Config{
		Timeout:     time.Duration(c.Bus.TimeoutMS) * time.Millisecond,
		Attempts:    c.Bus.Attempts,
		RetryDelay:  time.Duration(c.Bus.RetryDelayMS) * time.Millisecond,
		MinInterval: time.Duration(c.Bus.MinIntervalMS) * time.Millisecond,
		Baud:        c.Port.Baud,
	}
}

// FirmwareConfig returns the configuration of the simulated board.
func (c *Config) FirmwareConfig() core.Config {
	fw := core.DefaultConfig()
	fw.Address = c.Simulate.Address
	fw.Name = c.Simulate.Name
	fw.SamplePeriod = c.Simulate.SamplePeriodUS
	fw.Turnaround = c.Simulate.TurnaroundUS
	fw.Preamble = c.Simulate.Preamble
	return fw
}
