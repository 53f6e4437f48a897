// Copyright 2025 ExpertRouter
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

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/taskmesh/expertrouter/shared/types"
)

// Store persists Experts so a registry survives a process restart. The
// registry treats every Store call as best-effort: a Store failure is
// logged, never surfaced to the caller who triggered the mutation
// (spec §4.2 failure semantics apply to reads; writes degrade to
// memory-only rather than blocking the request path).
type Store interface {
	LoadAll(ctx context.Context) ([]types.Expert, error)
	Upsert(ctx context.Context, e types.Expert) error
	Delete(ctx context.Context, id string) error
}

// PostgresStore is a Store backed by a Postgres table, grounded on the
// connectors/postgres connector's pooled *sql.DB usage. DATA-DOG/go-sqlmock
// drives it in tests the same way connectors/postgres is tested.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresStore wraps db (typically a *sql.DB opened against the
// "postgres" driver, as connectors/postgres does) as a registry Store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, logger: log.New(os.Stdout, "[REGISTRY_PG] ", log.LstdFlags)}
}

const createExpertsTableDDL = `
CREATE TABLE IF NOT EXISTS registry_experts (
	id                 TEXT PRIMARY KEY,
	type               TEXT NOT NULL,
	capability_vector  JSONB NOT NULL,
	status             TEXT NOT NULL,
	stats              JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	last_used_at       TIMESTAMPTZ NOT NULL,
	scenario_signature TEXT
)`

// LoadAll returns every persisted expert, most recently used first.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]types.Expert, error) {
	r, err := s.db.QueryContext(ctx, `SELECT id, type, capability_vector, status, stats, created_at, last_used_at, scenario_signature FROM registry_experts ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("registry: load experts: %w", err)
	}
	defer r.Close()

	var out []types.Expert
	for r.Next() {
		var (
			e               types.Expert
			capRaw, statRaw []byte
			typ, status     string
			sig             *string
		)
		if err := r.Scan(&e.ID, &typ, &capRaw, &status, &statRaw, &e.CreatedAt, &e.LastUsedAt, &sig); err != nil {
			return nil, fmt.Errorf("registry: scan expert row: %w", err)
		}
		e.Type = types.ExpertType(typ)
		e.Status = types.ExpertStatus(status)
		if sig != nil {
			e.ScenarioSignature = *sig
		}
		if err := json.Unmarshal(capRaw, &e.CapabilityVector); err != nil {
			return nil, fmt.Errorf("registry: unmarshal capability vector: %w", err)
		}
		if err := json.Unmarshal(statRaw, &e.Stats); err != nil {
			return nil, fmt.Errorf("registry: unmarshal stats: %w", err)
		}
		out = append(out, e)
	}
	return out, r.Err()
}

// Upsert writes e, overwriting any row with the same id.
func (s *PostgresStore) Upsert(ctx context.Context, e types.Expert) error {
	capRaw, err := json.Marshal(e.CapabilityVector)
	if err != nil {
		return fmt.Errorf("registry: marshal capability vector: %w", err)
	}
	statRaw, err := json.Marshal(e.Stats)
	if err != nil {
		return fmt.Errorf("registry: marshal stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registry_experts (id, type, capability_vector, status, stats, created_at, last_used_at, scenario_signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			capability_vector = EXCLUDED.capability_vector,
			status = EXCLUDED.status,
			stats = EXCLUDED.stats,
			last_used_at = EXCLUDED.last_used_at`,
		e.ID, string(e.Type), capRaw, string(e.Status), statRaw, e.CreatedAt, e.LastUsedAt, nullableString(e.ScenarioSignature))
	if err != nil {
		s.logger.Printf("upsert failed for expert %s: %v", e.ID, err)
	}
	return err
}

// Delete removes a persisted expert. Used when the pruner evicts a
// dynamic expert.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM registry_experts WHERE id = $1`, id)
	if err != nil {
		s.logger.Printf("delete failed for expert %s: %v", id, err)
	}
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
