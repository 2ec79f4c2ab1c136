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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hirelift/hirelift/services/incentives/identity"
	"github.com/hirelift/hirelift/services/incentives/program"
)

// PostgresStore is the networked production back-end.
//
// Unlike the flat SQLite layout, programs hang off a jurisdiction tree
// rooted at federal (state -> federal, county -> state, city -> state),
// and target populations live in a normalized junction table. From the
// caller's point of view the semantics are identical to SQLiteStore:
// partitions are still addressed by (level, location_key), which is kept
// as a unique column on jurisdictions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jurisdictions (
	id            BIGSERIAL PRIMARY KEY,
	level         TEXT NOT NULL,
	name          TEXT NOT NULL,
	parent_id     BIGINT REFERENCES jurisdictions(id),
	location_key  TEXT NOT NULL,
	UNIQUE (level, location_key)
);

CREATE TABLE IF NOT EXISTS programs (
	cache_key               TEXT PRIMARY KEY,
	jurisdiction_id         BIGINT NOT NULL REFERENCES jurisdictions(id),
	program_name            TEXT NOT NULL,
	program_name_normalized TEXT NOT NULL,
	agency                  TEXT NOT NULL DEFAULT '',
	benefit_type            TEXT NOT NULL DEFAULT '',
	jurisdiction_label      TEXT NOT NULL DEFAULT '',
	max_value               TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	source_url              TEXT NOT NULL DEFAULT '',
	confidence              TEXT NOT NULL DEFAULT 'low',
	first_discovered_at     TIMESTAMPTZ NOT NULL,
	last_verified_at        TIMESTAMPTZ NOT NULL,
	discovery_count         INTEGER NOT NULL DEFAULT 1,
	miss_count              INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_programs_jurisdiction ON programs(jurisdiction_id);

CREATE TABLE IF NOT EXISTS target_populations (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS program_populations (
	cache_key     TEXT NOT NULL REFERENCES programs(cache_key),
	population_id BIGINT NOT NULL REFERENCES target_populations(id),
	position      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (cache_key, population_id)
);

CREATE TABLE IF NOT EXISTS search_log (
	id                BIGSERIAL PRIMARY KEY,
	government_level  TEXT NOT NULL,
	location_key      TEXT NOT NULL,
	search_queries    JSONB NOT NULL DEFAULT '[]',
	programs_found    INTEGER NOT NULL DEFAULT 0,
	searched_at       TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects and ensures the schema plus the federal root
// jurisdiction exist.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring postgres schema: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO jurisdictions (level, name, location_key)
		 VALUES ('federal', 'United States', 'federal')
		 ON CONFLICT (level, location_key) DO NOTHING`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seeding federal jurisdiction: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// jurisdictionID resolves (level, locationKey) to a jurisdiction row,
// creating it and its parent chain on first sight. The location key is
// self-describing (slug or slug_slug), so parents can be derived without
// extra context.
func (s *PostgresStore) jurisdictionID(ctx context.Context, level, locationKey string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM jurisdictions WHERE level = $1 AND location_key = $2`,
		level, locationKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("resolving jurisdiction: %w", err)
	}

	var parentID *int64
	switch level {
	case program.LevelFederal:
		// Root; created at startup.
	case program.LevelState:
		pid, err := s.jurisdictionID(ctx, program.LevelFederal, "federal")
		if err != nil {
			return 0, err
		}
		parentID = &pid
	case program.LevelCounty, program.LevelCity:
		// county/city keys are "<name>_<state...>"; the state key is
		// everything after the first segment.
		parts := strings.SplitN(locationKey, "_", 2)
		stateKey := locationKey
		if len(parts) == 2 {
			stateKey = parts[1]
		}
		pid, err := s.jurisdictionID(ctx, program.LevelState, stateKey)
		if err != nil {
			return 0, err
		}
		parentID = &pid
	default:
		return 0, fmt.Errorf("resolving jurisdiction: unknown level %q", level)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO jurisdictions (level, name, parent_id, location_key)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (level, location_key) DO UPDATE SET name = jurisdictions.name
		 RETURNING id`,
		level, keyDisplayName(locationKey), parentID, locationKey).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating jurisdiction: %w", err)
	}
	return id, nil
}

func keyDisplayName(locationKey string) string {
	words := strings.Fields(strings.ReplaceAll(locationKey, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (s *PostgresStore) GetCached(ctx context.Context, level, locationKey string, ttlDays int) ([]program.Program, []program.Program, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.cache_key, p.program_name, p.program_name_normalized, p.agency,
		        p.benefit_type, p.jurisdiction_label, p.max_value, p.description,
		        p.source_url, p.confidence, j.level, j.location_key,
		        p.first_discovered_at, p.last_verified_at, p.discovery_count, p.miss_count
		 FROM programs p
		 JOIN jurisdictions j ON j.id = p.jurisdiction_id
		 WHERE j.level = $1 AND j.location_key = $2
		   AND NOT (p.miss_count >= $3 AND p.discovery_count <= $4)`,
		level, locationKey, HallucinationMissThreshold, HallucinationDiscoveryThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("querying cache partition: %w", err)
	}
	defer rows.Close()

	cutoff := time.Now().AddDate(0, 0, -ttlDays)
	var fresh, stale []program.Program
	for rows.Next() {
		var p program.Program
		err := rows.Scan(&p.CacheKey, &p.ProgramName, &p.ProgramNameNormalized, &p.Agency,
			&p.BenefitType, &p.Jurisdiction, &p.MaxValue, &p.Description,
			&p.SourceURL, &p.Confidence, &p.GovernmentLevel, &p.LocationKey,
			&p.FirstDiscoveredAt, &p.LastVerifiedAt, &p.DiscoveryCount, &p.MissCount)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning cache row: %w", err)
		}
		p.ID = p.CacheKey
		p.TargetPopulations, err = s.programPopulations(ctx, p.CacheKey)
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

func (s *PostgresStore) programPopulations(ctx context.Context, cacheKey string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tp.name
		 FROM program_populations pp
		 JOIN target_populations tp ON tp.id = pp.population_id
		 WHERE pp.cache_key = $1
		 ORDER BY pp.position`, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("querying program populations: %w", err)
	}
	defer rows.Close()

	var pops []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		pops = append(pops, name)
	}
	return pops, rows.Err()
}

func (s *PostgresStore) replacePopulations(ctx context.Context, cacheKey string, pops []string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM program_populations WHERE cache_key = $1`, cacheKey); err != nil {
		return fmt.Errorf("clearing program populations: %w", err)
	}
	for i, name := range pops {
		var popID int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO target_populations (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, name).Scan(&popID)
		if err != nil {
			return fmt.Errorf("resolving population %q: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO program_populations (cache_key, population_id, position)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			cacheKey, popID, i); err != nil {
			return fmt.Errorf("linking population %q: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p program.Program, level, locationKey string) (string, error) {
	normalized := identity.NormalizeProgramName(p.ProgramName)
	if normalized == "" {
		return "", fmt.Errorf("upserting program: empty program name")
	}
	cacheKey := identity.ComputeProgramID(normalized, level, locationKey)

	jurisdictionID, err := s.jurisdictionID(ctx, level, locationKey)
	if err != nil {
		return "", err
	}

	confidence := p.Confidence
	if confidence == "" {
		confidence = program.ConfidenceLow
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE programs SET
			last_verified_at = now(),
			discovery_count  = discovery_count + 1,
			miss_count       = 0,
			agency           = COALESCE(NULLIF($1, ''), agency),
			benefit_type     = COALESCE(NULLIF($2, ''), benefit_type),
			max_value        = COALESCE(NULLIF($3, ''), max_value),
			description      = CASE WHEN length($4) > length(description) THEN $4 ELSE description END,
			source_url       = COALESCE(NULLIF($5, ''), source_url),
			confidence       = CASE
				WHEN $6 = 'high' THEN 'high'
				WHEN $6 = 'medium' AND confidence != 'high' THEN 'medium'
				ELSE confidence
			END
		WHERE cache_key = $7`,
		p.Agency, p.BenefitType, p.MaxValue, p.Description, p.SourceURL,
		confidence, cacheKey)
	if err != nil {
		return "", fmt.Errorf("updating cached program: %w", err)
	}

	if tag.RowsAffected() == 0 {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO programs (
				cache_key, jurisdiction_id, program_name, program_name_normalized,
				agency, benefit_type, jurisdiction_label, max_value, description,
				source_url, confidence, first_discovered_at, last_verified_at,
				discovery_count, miss_count
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now(),1,0)`,
			cacheKey, jurisdictionID, p.ProgramName, normalized,
			p.Agency, p.BenefitType, p.Jurisdiction, p.MaxValue, p.Description,
			p.SourceURL, confidence)
		if err != nil {
			return "", fmt.Errorf("inserting cached program: %w", err)
		}
		if err := s.replacePopulations(ctx, cacheKey, p.TargetPopulations); err != nil {
			return "", err
		}
	} else if len(p.TargetPopulations) > 0 {
		// Richness proxy, matching the embedded store: the longer list wins.
		existing, err := s.programPopulations(ctx, cacheKey)
		if err != nil {
			return "", err
		}
		if listLen(p.TargetPopulations) > listLen(existing) {
			if err := s.replacePopulations(ctx, cacheKey, p.TargetPopulations); err != nil {
				return "", err
			}
		}
	}

	upserts.WithLabelValues(level).Inc()
	return cacheKey, nil
}

// listLen measures the serialized length of a population list so both
// back-ends apply the same "longer list wins" rule.
func listLen(pops []string) int {
	b, err := json.Marshal(nonNil(pops))
	if err != nil {
		return 0
	}
	return len(b)
}

func (s *PostgresStore) Confirm(ctx context.Context, cacheKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE programs SET
			last_verified_at = now(),
			discovery_count  = discovery_count + 1,
			miss_count       = 0
		WHERE cache_key = $1`, cacheKey)
	if err != nil {
		return fmt.Errorf("confirming cached program: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	confirmations.Inc()
	return nil
}

func (s *PostgresStore) IncrementMiss(ctx context.Context, level, locationKey string, foundKeys map[string]struct{}) error {
	rows, err := s.pool.Query(ctx,
		`SELECT p.cache_key
		 FROM programs p JOIN jurisdictions j ON j.id = p.jurisdiction_id
		 WHERE j.level = $1 AND j.location_key = $2`, level, locationKey)
	if err != nil {
		return fmt.Errorf("listing partition keys: %w", err)
	}
	var missed []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return err
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
		if _, err := s.pool.Exec(ctx,
			`UPDATE programs SET miss_count = miss_count + 1 WHERE cache_key = $1`, key); err != nil {
			return fmt.Errorf("bumping miss count: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LogSearch(ctx context.Context, level, locationKey string, queries []string, programsFound int) error {
	queriesJSON, err := json.Marshal(nonNil(queries))
	if err != nil {
		return fmt.Errorf("serializing search queries: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_log (government_level, location_key, search_queries, programs_found, searched_at)
		 VALUES ($1,$2,$3,$4,now())`,
		level, locationKey, queriesJSON, programsFound)
	if err != nil {
		return fmt.Errorf("appending search log: %w", err)
	}
	return nil
}

func (s *PostgresStore) SeedFederal(ctx context.Context, programs []program.Program) error {
	for _, p := range programs {
		if _, err := s.Upsert(ctx, p, program.LevelFederal, "federal"); err != nil {
			return fmt.Errorf("seeding federal program %q: %w", p.ProgramName, err)
		}
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByLevel: make(map[string]int)}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM programs`).Scan(&stats.TotalPrograms); err != nil {
		return stats, fmt.Errorf("counting programs: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT j.level, COUNT(*)
		 FROM programs p JOIN jurisdictions j ON j.id = p.jurisdiction_id
		 GROUP BY j.level`)
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

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM search_log`).Scan(&stats.TotalSearches); err != nil {
		return stats, fmt.Errorf("counting searches: %w", err)
	}
	return stats, nil
}
