// Package config loads the optional YAML tuning file cmd/soundrom merges
// under its CLI flags: sample rate, POKEY filter threshold and logger
// level (spec.md S6.5, "ambient stack" configuration). The tick-rate and
// output-mode fields are parsed but not read by cmd/soundrom.
//
// Grounded on doismellburning-samoyed's deviceid.go (gopkg.in/yaml.v3,
// read-file-then-unmarshal, non-fatal on a missing file) adapted from that
// file's map[string]interface{} decode to a typed struct, since this
// config's shape is fixed rather than a variable-schema data table.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine tuning file's top-level shape. Every field is
// optional; a zero value means "let the CLI flag or engine default win".
type Config struct {
	// TickRateHz is parsed from the file but not used: engine.TickRateHz
	// is a constant and cmd/soundrom does not read this field.
	TickRateHz int `yaml:"tick_rate_hz"`

	// OutputMode ("trace", "play", or "render") is parsed from the file but
	// not used: cmd/soundrom selects its output by subcommand only.
	OutputMode string `yaml:"output_mode"`

	// SampleRate is the default PCM sample rate for play/render modes.
	SampleRate int `yaml:"sample_rate"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// FilterThreshold overrides engine.POKEYWriter.FilterThreshold.
	FilterThreshold int `yaml:"filter_threshold"`
}

// Default returns the configuration used when no file is given: every
// field set to the engine/CLI's own built-in defaults.
func Default() Config {
	return Config{
		TickRateHz:      0, // 0 means "use engine.TickRateHz"
		OutputMode:      "trace",
		SampleRate:      44100,
		LogLevel:        "info",
		FilterThreshold: 0,
	}
}

// Load reads and parses a YAML tuning file. A missing file is not an
// error -- cmd/soundrom's --config flag is optional, and the caller gets
// Default() back unchanged in that case, mirroring deviceid_init's
// "couldn't open it, carry on without this data" tolerance.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
