// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and saves the interlock CLI settings file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/interlock/pkg/atomicfile"
)

// Duration is a time.Duration that marshals to and from YAML as a
// human-readable string ("5s", "50ms").
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root configuration structure.
type Config struct {
	Lock LockConfig `yaml:"lock"`
	Log  LogConfig  `yaml:"log"`
}

// LockConfig holds default lock acquisition settings. Command-line flags
// override these per invocation.
type LockConfig struct {
	// Timeout bounds blocking acquisition. Zero waits forever.
	Timeout Duration `yaml:"timeout"`
	// PollInterval is the delay between acquisition attempts.
	PollInterval Duration `yaml:"poll_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no settings file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in zero-valued fields. Timeout is left alone: zero is
// a meaningful value (wait forever) and the shipped default.
func (c *Config) applyDefaults() {
	if c.Lock.PollInterval == 0 {
		c.Lock.PollInterval = Duration(50 * time.Millisecond)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// Load reads the configuration from path. If path is empty the default
// settings path is used; a missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = SettingsPath()
		if err != nil {
			return nil, fmt.Errorf("resolve settings path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse settings YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the configuration to path atomically. If path is empty the
// default settings path is used.
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		path, err = SettingsPath()
		if err != nil {
			return fmt.Errorf("resolve settings path: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings YAML: %w", err)
	}

	if err := atomicfile.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
