// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "data/programs.db", cfg.SQLitePath)
	assert.Equal(t, "anthropic", cfg.LLMBackend)
	assert.Equal(t, "Illinois", cfg.DefaultState)
	assert.False(t, cfg.DemoMode)
	assert.Equal(t, 3, cfg.MaxROIRounds)
	assert.Equal(t, 30, cfg.TTLs.Federal)
	assert.Equal(t, 7, cfg.TTLs.City)
	assert.Equal(t, 5, cfg.RateLimits.MaxConcurrentSessions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INCENTIVES_PORT", "9000")
	t.Setenv("DEFAULT_STATE", "Arizona")
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("CACHE_TTL_CITY_DAYS", "3")
	t.Setenv("MAX_CONCURRENT_SESSIONS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "Arizona", cfg.DefaultState)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, 3, cfg.TTLs.City)
	assert.Equal(t, 2, cfg.RateLimits.MaxConcurrentSessions)
}

func TestLoad_YAMLOverlayUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incentives.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9100"
default_state: Ohio
cache_ttl_days:
  federal: 60
  state: 45
  county: 10
  city: 5
`), 0o644))
	t.Setenv("INCENTIVES_CONFIG_FILE", path)
	// Environment still wins over the file.
	t.Setenv("DEFAULT_STATE", "Indiana")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "Indiana", cfg.DefaultState)
	assert.Equal(t, 60, cfg.TTLs.Federal)
	assert.Equal(t, 5, cfg.TTLs.City)
	// Unmentioned sections keep their defaults.
	assert.Equal(t, 50, cfg.RateLimits.MaxSessionsPerDay)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	t.Setenv("CACHE_TTL_FEDERAL_DAYS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestTTLDays(t *testing.T) {
	cfg := Default()
	assert.Equal(t, map[string]int{
		"federal": 30,
		"state":   30,
		"county":  14,
		"city":    7,
	}, cfg.TTLDays())
}
