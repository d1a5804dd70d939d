package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config holds the teeproxy settings.
type Config struct {
	Listen         string
	CapturePath    string
	CACert         string
	CAKey          string
	Echo           bool
	CaptureTunnels bool
	LogLevel       string
}

type fileConfig struct {
	Listen         string `toml:"listen"`
	CapturePath    string `toml:"capture"`
	CACert         string `toml:"ca_cert"`
	CAKey          string `toml:"ca_key"`
	Echo           bool   `toml:"echo"`
	CaptureTunnels bool   `toml:"capture_tunnels"`
	LogLevel       string `toml:"log_level"`
}

// Default returns the settings used when neither file nor flag sets a value.
func Default() Config {
	return Config{
		Listen:         ":8080",
		CaptureTunnels: true,
		LogLevel:       "info",
	}
}

// Load reads a TOML file and applies the keys it defines on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("capture") {
		cfg.CapturePath = strings.TrimSpace(raw.CapturePath)
	}
	if meta.IsDefined("ca_cert") {
		cfg.CACert = strings.TrimSpace(raw.CACert)
	}
	if meta.IsDefined("ca_key") {
		cfg.CAKey = strings.TrimSpace(raw.CAKey)
	}
	if meta.IsDefined("echo") {
		cfg.Echo = raw.Echo
	}
	if meta.IsDefined("capture_tunnels") {
		cfg.CaptureTunnels = raw.CaptureTunnels
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the listen address, the CA pair and the log level.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if (c.CACert == "") != (c.CAKey == "") {
		return errors.New("ca_cert and ca_key must be provided together")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
