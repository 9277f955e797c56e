/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvAddr         = "RMI_ADDR"
	EnvControlAddr  = "RMI_CONTROL_ADDR"
	EnvMetricsAddr  = "RMI_METRICS_ADDR"
	EnvBurstTimeout = "RMI_BURST_TIMEOUT"
	EnvMaxSessions  = "RMI_MAX_SESSIONS"
)

type Config struct {
	Addr         string        `toml:"addr" yaml:"addr"`
	ControlAddr  string        `toml:"control_addr" yaml:"control_addr"`
	MetricsAddr  string        `toml:"metrics_addr" yaml:"metrics_addr"`
	BurstTimeout time.Duration `toml:"burst_timeout" yaml:"burst_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	MaxSessions  int           `toml:"max_sessions" yaml:"max_sessions"`
	AcceptRate   float64       `toml:"accept_rate" yaml:"accept_rate"`
	AcceptBurst  int           `toml:"accept_burst" yaml:"accept_burst"`
	LogLevel     string        `toml:"log_level" yaml:"log_level"`
	LogFormat    string        `toml:"log_format" yaml:"log_format"`
}

func Default() Config {
	return Config{
		Addr:         "127.0.0.1:11001",
		BurstTimeout: 20 * time.Millisecond,
		WriteTimeout: 30 * time.Second,
		MaxSessions:  1,
		AcceptRate:   10,
		AcceptBurst:  4,
	}
}

// Load reads a .toml or .yaml file over the defaults, then applies env
// overrides. An empty path yields defaults plus env.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	ApplyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "config load failed (%s)", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), out); err != nil {
			return errors.Wrapf(err, "config parse failed (%s)", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return errors.Wrapf(err, "config parse failed (%s)", path)
		}
	default:
		return errors.Errorf("config format not supported (%s)", path)
	}
	return nil
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvControlAddr)); v != "" {
		cfg.ControlAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsAddr)); v != "" {
		cfg.MetricsAddr = v
	}
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(EnvBurstTimeout))); err == nil {
		cfg.BurstTimeout = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvMaxSessions))); err == nil {
		cfg.MaxSessions = v
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return errors.New("config missing addr")
	}
	if cfg.BurstTimeout <= 0 {
		return errors.Errorf("burst_timeout must be positive, got %s", cfg.BurstTimeout)
	}
	if cfg.WriteTimeout < 0 {
		return errors.Errorf("write_timeout must not be negative, got %s", cfg.WriteTimeout)
	}
	if cfg.MaxSessions < 1 {
		return errors.Errorf("max_sessions must be at least 1, got %d", cfg.MaxSessions)
	}
	if cfg.AcceptRate < 0 || cfg.AcceptBurst < 0 {
		return errors.New("accept_rate and accept_burst must not be negative")
	}
	if cfg.ControlAddr != "" && cfg.ControlAddr == cfg.Addr {
		return errors.New("control_addr must differ from addr")
	}
	return nil
}
