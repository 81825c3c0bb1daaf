// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package config loads evtxdump's YAML-persisted defaults:
// read the file, fall back to defaults when it's missing, unmarshal
// over them otherwise.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/evtxgo/evtx"
)

// Config is evtxdump's persisted defaults: the Options fields a user is
// likely to want fixed across invocations, plus the cache-seed path.
type Config struct {
	OutputFormat      string `yaml:"output_format"`       // "xml" or "json"
	MaxParallelism    int    `yaml:"max_parallelism"`
	ValidateChecksums bool   `yaml:"validate_checksums"`
	TemplateCachePath string `yaml:"template_cache_path,omitempty"`
}

// DefaultConfig returns a Config with evtxdump's out-of-the-box defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat:      "xml",
		MaxParallelism:    0,
		ValidateChecksums: false,
	}
}

// DefaultPath returns the default config file path (~/.evtxdump/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "evtxdump.yaml"
	}
	return filepath.Join(home, ".evtxdump", "config.yaml")
}

// Load reads configuration from path, falling back to DefaultConfig when
// the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ToOptions translates the persisted config into evtx.Options, the shape
// Open/NewBytes accept directly.
func (c *Config) ToOptions() *evtx.Options {
	format := evtx.OutputXML
	if c.OutputFormat == "json" {
		format = evtx.OutputJSON
	}
	return &evtx.Options{
		MaxParallelism:    c.MaxParallelism,
		OutputFormat:      format,
		ValidateChecksums: c.ValidateChecksums,
	}
}
