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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskmesh/expertrouter/shared/types"
)

// SnapshotCache publishes the registry's copy-on-write snapshot so
// sibling process instances can serve Find/Get without round-tripping
// to the Store (spec §5: "copy-on-write snapshots for readers").
type SnapshotCache interface {
	Publish(ctx context.Context, experts map[string]types.Expert)
	Fetch(ctx context.Context) (map[string]types.Expert, error)
}

// RedisSnapshotCache is a SnapshotCache backed by a single Redis key
// holding the JSON-encoded expert map, grounded on the go-redis/redis/v8
// client connectors/redis already wraps.
type RedisSnapshotCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *log.Logger
}

// DefaultSnapshotTTL bounds how stale a sibling instance's cached read
// can be before it must fall back to the Store.
const DefaultSnapshotTTL = 30 * time.Second

// NewRedisSnapshotCache wraps client under key, matching the pooled
// client shape connectors/redis.NewRedisConnector configures.
func NewRedisSnapshotCache(client *redis.Client, key string) *RedisSnapshotCache {
	if key == "" {
		key = "expertrouter:registry:snapshot"
	}
	return &RedisSnapshotCache{
		client: client,
		key:    key,
		ttl:    DefaultSnapshotTTL,
		logger: log.New(os.Stdout, "[REGISTRY_REDIS] ", log.LstdFlags),
	}
}

// Publish writes experts to Redis. It is called from a goroutine on
// every registry mutation and is best-effort: a Redis outage never
// blocks or fails the mutation that triggered it.
func (c *RedisSnapshotCache) Publish(ctx context.Context, experts map[string]types.Expert) {
	raw, err := json.Marshal(experts)
	if err != nil {
		c.logger.Printf("marshal snapshot: %v", err)
		return
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.logger.Printf("publish snapshot: %v", err)
	}
}

// Fetch reads back the last published snapshot. Callers treat a miss
// (redis.Nil) as "no cached snapshot available" rather than an error.
func (c *RedisSnapshotCache) Fetch(ctx context.Context) (map[string]types.Expert, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: fetch snapshot: %w", err)
	}
	var experts map[string]types.Expert
	if err := json.Unmarshal(raw, &experts); err != nil {
		return nil, fmt.Errorf("registry: unmarshal snapshot: %w", err)
	}
	return experts, nil
}
