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

package optimizer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/taskmesh/expertrouter/shared/types"
)

// ObservationStore is the append-only durable log backing the
// optimizer's training data (spec §4.7: "append-only observation log").
// Implementations may back onto Postgres, MySQL, or Cassandra — any of
// the SQL/wide-column stores connectors/* already wraps.
type ObservationStore interface {
	Append(ctx context.Context, obs types.RoutingObservation) error
	LoadRecent(ctx context.Context, limit int) ([]types.RoutingObservation, error)
	Count(ctx context.Context) (int64, error)
}

const createObservationsTableDDL = `
CREATE TABLE IF NOT EXISTS routing_observations (
	request_id TEXT PRIMARY KEY,
	feature_keys TEXT[] NOT NULL,
	feature_values DOUBLE PRECISION[] NOT NULL,
	decision TEXT NOT NULL,
	reward DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

// PostgresObservationStore persists RoutingObservations to Postgres via
// database/sql + lib/pq, the same driver registry.PostgresStore uses.
type PostgresObservationStore struct {
	db *sql.DB
}

// NewPostgresObservationStore wraps db. Callers are expected to have
// already applied createObservationsTableDDL (or an equivalent
// migration) to the target database.
func NewPostgresObservationStore(db *sql.DB) *PostgresObservationStore {
	return &PostgresObservationStore{db: db}
}

func (s *PostgresObservationStore) Append(ctx context.Context, obs types.RoutingObservation) error {
	keys := make([]string, 0, len(obs.Features))
	values := make([]float64, 0, len(obs.Features))
	for k, v := range obs.Features {
		keys = append(keys, k)
		values = append(values, v)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_observations (request_id, feature_keys, feature_values, decision, reward, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO NOTHING`,
		obs.RequestID, pq.Array(keys), pq.Array(values), string(obs.Decision), obs.Reward, obs.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("optimizer: append observation: %w", err)
	}
	return nil
}

func (s *PostgresObservationStore) LoadRecent(ctx context.Context, limit int) ([]types.RoutingObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, feature_keys, feature_values, decision, reward, recorded_at
		FROM routing_observations
		ORDER BY recorded_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("optimizer: load recent observations: %w", err)
	}
	defer rows.Close()

	var out []types.RoutingObservation
	for rows.Next() {
		var obs types.RoutingObservation
		var keys []string
		var values []float64
		var decision string
		if err := rows.Scan(&obs.RequestID, pq.Array(&keys), pq.Array(&values), &decision, &obs.Reward, &obs.Timestamp); err != nil {
			return nil, fmt.Errorf("optimizer: scan observation row: %w", err)
		}
		obs.Decision = types.Outcome(decision)
		obs.Features = make(map[string]float64, len(keys))
		for i, k := range keys {
			if i < len(values) {
				obs.Features[k] = values[i]
			}
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *PostgresObservationStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM routing_observations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("optimizer: count observations: %w", err)
	}
	return n, nil
}

// MemoryObservationStore is an in-process ObservationStore for tests
// and for single-instance deployments with no durable log configured.
type MemoryObservationStore struct {
	obs []types.RoutingObservation
}

func NewMemoryObservationStore() *MemoryObservationStore {
	return &MemoryObservationStore{}
}

func (s *MemoryObservationStore) Append(ctx context.Context, obs types.RoutingObservation) error {
	s.obs = append(s.obs, obs)
	return nil
}

func (s *MemoryObservationStore) LoadRecent(ctx context.Context, limit int) ([]types.RoutingObservation, error) {
	if limit <= 0 || limit > len(s.obs) {
		limit = len(s.obs)
	}
	start := len(s.obs) - limit
	out := make([]types.RoutingObservation, limit)
	copy(out, s.obs[start:])
	return out, nil
}

func (s *MemoryObservationStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.obs)), nil
}
