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

package humanloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskmesh/expertrouter/shared/types"
)

// SessionCache lets the orchestrator recover an in-flight session's
// state across process restarts or load-balanced replicas, the same
// sibling-visibility role registry.SnapshotCache plays for the expert
// registry.
type SessionCache interface {
	Put(ctx context.Context, session types.InteractionSession) error
	Get(ctx context.Context, sessionID string) (types.InteractionSession, bool, error)
	Delete(ctx context.Context, sessionID string)
}

// RedisSessionCache stores each session under its own key with a TTL
// equal to the session's own ExpiresAt, so stale entries self-evict
// without a sweeper (spec §4.5: "TTL equal to expires_at").
type RedisSessionCache struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionCache wraps client with keys under prefix (defaulted
// if empty).
func NewRedisSessionCache(client *redis.Client, prefix string) *RedisSessionCache {
	if prefix == "" {
		prefix = "expertrouter:humanloop:session:"
	}
	return &RedisSessionCache{client: client, prefix: prefix}
}

func (c *RedisSessionCache) key(sessionID string) string {
	return c.prefix + sessionID
}

func (c *RedisSessionCache) Put(ctx context.Context, session types.InteractionSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("humanloop: marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := c.client.Set(ctx, c.key(session.SessionID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("humanloop: cache session: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Get(ctx context.Context, sessionID string) (types.InteractionSession, bool, error) {
	raw, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err == redis.Nil {
		return types.InteractionSession{}, false, nil
	}
	if err != nil {
		return types.InteractionSession{}, false, fmt.Errorf("humanloop: fetch session: %w", err)
	}
	var session types.InteractionSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return types.InteractionSession{}, false, fmt.Errorf("humanloop: unmarshal session: %w", err)
	}
	return session, true, nil
}

func (c *RedisSessionCache) Delete(ctx context.Context, sessionID string) {
	c.client.Del(ctx, c.key(sessionID))
}
