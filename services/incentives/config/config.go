// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the service configuration: environment variables
// with defaults, an optional .env file, and an optional YAML overlay for
// the tunables (TTLs, rate ceilings).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TTLs holds per-level cache freshness windows in days.
type TTLs struct {
	Federal int `yaml:"federal" validate:"gt=0"`
	State   int `yaml:"state" validate:"gt=0"`
	County  int `yaml:"county" validate:"gt=0"`
	City    int `yaml:"city" validate:"gt=0"`
}

// RateLimits holds the usage ceilings.
type RateLimits struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" validate:"gt=0"`
	MaxSessionsPerDay     int `yaml:"max_sessions_per_day" validate:"gt=0"`
	MaxSearchesPerSession int `yaml:"max_searches_per_session" validate:"gt=0"`
	MaxLLMCallsPerSession int `yaml:"max_llm_calls_per_session" validate:"gt=0"`
}

// Config is the full service configuration.
type Config struct {
	Port        string `yaml:"port" validate:"required"`
	DatabaseURL string `yaml:"-"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required"`

	LLMBackend   string `yaml:"llm_backend"`
	ExaAPIKey    string `yaml:"-"`
	DefaultState string `yaml:"default_state" validate:"required"`

	DemoMode         bool `yaml:"demo_mode"`
	MaxROIRounds     int  `yaml:"max_roi_rounds" validate:"gt=0"`
	DisableTelemetry bool `yaml:"disable_telemetry"`

	TTLs       TTLs       `yaml:"cache_ttl_days"`
	RateLimits RateLimits `yaml:"rate_limits"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Port:         "8000",
		SQLitePath:   "data/programs.db",
		LLMBackend:   "anthropic",
		DefaultState: "Illinois",
		MaxROIRounds: 3,
		TTLs: TTLs{
			Federal: 30,
			State:   30,
			County:  14,
			City:    7,
		},
		RateLimits: RateLimits{
			MaxConcurrentSessions: 5,
			MaxSessionsPerDay:     50,
			MaxSearchesPerSession: 20,
			MaxLLMCallsPerSession: 10,
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file
// named by INCENTIVES_CONFIG_FILE, then environment variables on top.
// A .env file in the working directory is read first if present.
func Load() (Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("INCENTIVES_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "INCENTIVES_PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SQLitePath, "INCENTIVES_DB_PATH")
	setString(&cfg.LLMBackend, "LLM_BACKEND_TYPE")
	setString(&cfg.ExaAPIKey, "EXA_API_KEY")
	setString(&cfg.DefaultState, "DEFAULT_STATE")
	setBool(&cfg.DemoMode, "DEMO_MODE")
	setBool(&cfg.DisableTelemetry, "DISABLE_TELEMETRY")
	setInt(&cfg.MaxROIRounds, "MAX_ROI_REFINEMENT_ROUNDS")

	setInt(&cfg.TTLs.Federal, "CACHE_TTL_FEDERAL_DAYS")
	setInt(&cfg.TTLs.State, "CACHE_TTL_STATE_DAYS")
	setInt(&cfg.TTLs.County, "CACHE_TTL_COUNTY_DAYS")
	setInt(&cfg.TTLs.City, "CACHE_TTL_CITY_DAYS")

	setInt(&cfg.RateLimits.MaxConcurrentSessions, "MAX_CONCURRENT_SESSIONS")
	setInt(&cfg.RateLimits.MaxSessionsPerDay, "MAX_SESSIONS_PER_DAY")
	setInt(&cfg.RateLimits.MaxSearchesPerSession, "MAX_SEARCHES_PER_SESSION")
	setInt(&cfg.RateLimits.MaxLLMCallsPerSession, "MAX_LLM_CALLS_PER_SESSION")
}

// TTLDays returns the freshness windows keyed by government level.
func (c Config) TTLDays() map[string]int {
	return map[string]int{
		"federal": c.TTLs.Federal,
		"state":   c.TTLs.State,
		"county":  c.TTLs.County,
		"city":    c.TTLs.City,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
