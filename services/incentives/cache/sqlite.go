// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hirelift/hirelift/services/incentives/identity"
	"github.com/hirelift/hirelift/services/incentives/program"
)

// SQLiteStore is the embedded single-file back-end used for local
// development.
//
// WAL journal mode allows concurrent readers from parallel discovery
// workers alongside one writer; busy_timeout=10s rides out transient
// write contention. Each operation opens and closes its own connection
// so workers never share handles across task boundaries.
type SQLiteStore struct {
	dsn  string
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS programs (
	cache_key               TEXT PRIMARY KEY,
	program_name            TEXT NOT NULL,
	program_name_normalized TEXT NOT NULL,
	agency                  TEXT DEFAULT '',
	benefit_type            TEXT DEFAULT '',
	jurisdiction            TEXT DEFAULT '',
	max_value               TEXT DEFAULT '',
	target_populations      TEXT DEFAULT '[]',
	description             TEXT DEFAULT '',
	source_url              TEXT DEFAULT '',
	confidence              TEXT DEFAULT 'low',
	government_level        TEXT NOT NULL,
	location_key            TEXT NOT NULL,
	first_discovered_at     TEXT NOT NULL,
	last_verified_at        TEXT NOT NULL,
	discovery_count         INTEGER DEFAULT 1,
	miss_count              INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_programs_level_location
ON programs(government_level, location_key);

CREATE TABLE IF NOT EXISTS search_log (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	government_level  TEXT NOT NULL,
	location_key      TEXT NOT NULL,
	search_queries    TEXT DEFAULT '[]',
	programs_found    INTEGER DEFAULT 0,
	searched_at       TEXT NOT NULL
);
`

// NewSQLiteStore creates the database file (and parent directory) if
// needed and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	s := &SQLiteStore{
		path: path,
		dsn:  fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", path),
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensuring cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	// One connection per operation; the file-level WAL lock does the
	// cross-process serialization.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close is a no-op: connections are per-operation.
func (s *SQLiteStore) Close() error { return nil }

func (s *SQLiteStore) GetCached(ctx context.Context, level, locationKey string, ttlDays int) ([]program.Program, []program.Program, error) {
	db, err := s.open()
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT cache_key, program_name, program_name_normalized, agency, benefit_type,
		        jurisdiction, max_value, target_populations, description, source_url,
		        confidence, government_level, location_key, first_discovered_at,
		        last_verified_at, discovery_count, miss_count
		 FROM programs
		 WHERE government_level = ? AND location_key = ?
		   AND NOT (miss_count >= ? AND discovery_count <= ?)`,
		level, locationKey, HallucinationMissThreshold, HallucinationDiscoveryThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("querying cache partition: %w", err)
	}
	defer rows.Close()

	cutoff := time.Now().AddDate(0, 0, -ttlDays)
	var fresh, stale []program.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, nil, err
		}
		if !p.LastVerifiedAt.Before(cutoff) {
			fresh = append(fresh, p)
		} else {
			stale = append(stale, p)
		}
	}
	return fresh, stale, rows.Err()
}

func scanProgram(rows *sql.Rows) (program.Program, error) {
	var p program.Program
	var pops, first, last string
	err := rows.Scan(&p.CacheKey, &p.ProgramName, &p.ProgramNameNormalized, &p.Agency,
		&p.BenefitType, &p.Jurisdiction, &p.MaxValue, &pops, &p.Description,
		&p.SourceURL, &p.Confidence, &p.GovernmentLevel, &p.LocationKey,
		&first, &last, &p.DiscoveryCount, &p.MissCount)
	if err != nil {
		return p, fmt.Errorf("scanning cache row: %w", err)
	}
	p.ID = p.CacheKey
	if err := json.Unmarshal([]byte(pops), &p.TargetPopulations); err != nil {
		p.TargetPopulations = nil
	}
	p.FirstDiscoveredAt, _ = time.Parse(time.RFC3339Nano, first)
	p.LastVerifiedAt, _ = time.Parse(time.RFC3339Nano, last)
	return p, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, p program.Program, level, locationKey string) (string, error) {
	normalized := identity.NormalizeProgramName(p.ProgramName)
	if normalized == "" {
		return "", fmt.Errorf("upserting program: empty program name")
	}
	cacheKey := identity.ComputeProgramID(normalized, level, locationKey)
	now := time.Now().Format(time.RFC3339Nano)

	popsJSON, err := json.Marshal(nonNil(p.TargetPopulations))
	if err != nil {
		return "", fmt.Errorf("serializing target populations: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return "", err
	}
	defer db.Close()

	confidence := p.Confidence
	if confidence == "" {
		confidence = program.ConfidenceLow
	}

	res, err := db.ExecContext(ctx,
		`UPDATE programs SET
			last_verified_at   = ?,
			discovery_count    = discovery_count + 1,
			miss_count         = 0,
			agency             = COALESCE(NULLIF(?, ''), agency),
			benefit_type       = COALESCE(NULLIF(?, ''), benefit_type),
			max_value          = COALESCE(NULLIF(?, ''), max_value),
			target_populations = CASE WHEN length(?) > length(target_populations) THEN ? ELSE target_populations END,
			description        = CASE WHEN length(?) > length(description) THEN ? ELSE description END,
			source_url         = COALESCE(NULLIF(?, ''), source_url),
			confidence         = CASE
				WHEN ? = 'high' THEN 'high'
				WHEN ? = 'medium' AND confidence != 'high' THEN 'medium'
				ELSE confidence
			END
		WHERE cache_key = ?`,
		now,
		p.Agency, p.BenefitType, p.MaxValue,
		string(popsJSON), string(popsJSON),
		p.Description, p.Description,
		p.SourceURL,
		confidence, confidence,
		cacheKey)
	if err != nil {
		return "", fmt.Errorf("updating cached program: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		_, err = db.ExecContext(ctx,
			`INSERT INTO programs (
				cache_key, program_name, program_name_normalized, agency, benefit_type,
				jurisdiction, max_value, target_populations, description, source_url,
				confidence, government_level, location_key, first_discovered_at,
				last_verified_at, discovery_count, miss_count
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1,0)`,
			cacheKey, p.ProgramName, normalized, p.Agency, p.BenefitType,
			p.Jurisdiction, p.MaxValue, string(popsJSON), p.Description, p.SourceURL,
			confidence, level, locationKey, now, now)
		if err != nil {
			return "", fmt.Errorf("inserting cached program: %w", err)
		}
	}

	upserts.WithLabelValues(level).Inc()
	return cacheKey, nil
}

func (s *SQLiteStore) Confirm(ctx context.Context, cacheKey string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ExecContext(ctx,
		`UPDATE programs SET
			last_verified_at = ?,
			discovery_count  = discovery_count + 1,
			miss_count       = 0
		WHERE cache_key = ?`,
		time.Now().Format(time.RFC3339Nano), cacheKey)
	if err != nil {
		return fmt.Errorf("confirming cached program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	confirmations.Inc()
	return nil
}

func (s *SQLiteStore) IncrementMiss(ctx context.Context, level, locationKey string, foundKeys map[string]struct{}) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT cache_key FROM programs WHERE government_level = ? AND location_key = ?`,
		level, locationKey)
	if err != nil {
		return fmt.Errorf("listing partition keys: %w", err)
	}
	var missed []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("scanning partition key: %w", err)
		}
		if _, found := foundKeys[key]; !found {
			missed = append(missed, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range missed {
		if _, err := db.ExecContext(ctx,
			`UPDATE programs SET miss_count = miss_count + 1 WHERE cache_key = ?`, key); err != nil {
			return fmt.Errorf("bumping miss count: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) LogSearch(ctx context.Context, level, locationKey string, queries []string, programsFound int) error {
	queriesJSON, err := json.Marshal(nonNil(queries))
	if err != nil {
		return fmt.Errorf("serializing search queries: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO search_log (government_level, location_key, search_queries, programs_found, searched_at)
		 VALUES (?,?,?,?,?)`,
		level, locationKey, string(queriesJSON), programsFound,
		time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("appending search log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SeedFederal(ctx context.Context, programs []program.Program) error {
	for _, p := range programs {
		if _, err := s.Upsert(ctx, p, program.LevelFederal, "federal"); err != nil {
			return fmt.Errorf("seeding federal program %q: %w", p.ProgramName, err)
		}
	}
	slog.Info("seeded federal programs", "count", len(programs))
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	db, err := s.open()
	if err != nil {
		return Stats{}, err
	}
	defer db.Close()

	stats := Stats{ByLevel: make(map[string]int)}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs`).Scan(&stats.TotalPrograms); err != nil {
		return stats, fmt.Errorf("counting programs: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT government_level, COUNT(*) FROM programs GROUP BY government_level`)
	if err != nil {
		return stats, fmt.Errorf("counting programs by level: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return stats, err
		}
		stats.ByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_log`).Scan(&stats.TotalSearches); err != nil {
		return stats, fmt.Errorf("counting searches: %w", err)
	}
	return stats, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
