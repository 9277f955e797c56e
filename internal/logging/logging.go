/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogLevel  = "RMI_LOG_LEVEL"
	EnvLogFormat = "RMI_LOG_FORMAT"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// New builds the process logger. level and format come from the config
// file and may be empty; env variables win over both.
func New(profile Profile, level, format string) (*zap.Logger, error) {
	cfg := defaultConfig(profile)
	applyLevel(&cfg, level)
	applyFormat(&cfg, format)
	applyLevel(&cfg, os.Getenv(EnvLogLevel))
	applyFormat(&cfg, os.Getenv(EnvLogFormat))
	return cfg.Build()
}

func defaultConfig(profile Profile) zap.Config {
	switch profile {
	case ProfileTest:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.DisableStacktrace = true
		return cfg
	default:
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg
	}
}

func applyLevel(cfg *zap.Config, raw string) {
	if lvl, ok := parseLevel(raw); ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
}

func applyFormat(cfg *zap.Config, raw string) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
	}
}

func parseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zapcore.InfoLevel, false
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "off", "disabled", "none":
		return zapcore.FatalLevel + 1, true
	default:
		return zapcore.InfoLevel, false
	}
}
