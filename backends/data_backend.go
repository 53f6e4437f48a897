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

package backends

import (
	"time"

	"context"

	"github.com/taskmesh/expertrouter/connectors/base"
	"github.com/taskmesh/expertrouter/connectors/registry"
	"github.com/taskmesh/expertrouter/shared/types"
)

// DataBackend serves the "data" base expert type (spec §3) by fanning a
// request's query out across whichever of Postgres, MySQL, MongoDB, or
// Cassandra the caller's tenant has connectors registered for — the
// expert does not care which store answers, only that every reachable
// one is asked.
//
// The request's payload must carry a "query" key (a SQL/CQL statement
// or, for MongoDB, a filter document) and may carry "parameters"; which
// named connectors are queried is controlled by the defaultConnectors
// list given to NewDataBackend unless the request overrides it via a "connectors" context key.
type DataBackend struct {
	reg               *registry.Registry
	defaultConnectors []string
}

// NewDataBackend wraps reg, querying defaultConnectors (by registered
// name, spec §3 tenant isolation) for every request unless overridden.
func NewDataBackend(reg *registry.Registry, defaultConnectors []string) *DataBackend {
	return &DataBackend{reg: reg, defaultConnectors: defaultConnectors}
}

func (b *DataBackend) Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	payload := payloadMap(req)
	statement, _ := payload["query"].(string)
	if statement == "" {
		return types.ExpertRecommendation{}, types.NewError(types.ErrInvalidRequest, req.ID, "data expert requires a \"query\" payload field", nil)
	}
	params, _ := payload["parameters"].(map[string]interface{})

	names := b.defaultConnectors
	if override, ok := req.Context["connectors"].([]string); ok && len(override) > 0 {
		names = override
	}
	if len(names) == 0 {
		return types.ExpertRecommendation{}, types.NewError(types.ErrInternalInvariant, req.ID, "data backend has no connectors configured", nil)
	}
	tenantID, _ := req.Context["tenant_id"].(string)

	start := time.Now()
	rows := make([]map[string]interface{}, 0)
	queried := make([]string, 0, len(names))
	var lastErr error

	for _, name := range names {
		if tenantID != "" {
			if err := b.reg.ValidateTenantAccess(name, tenantID); err != nil {
				lastErr = err
				continue
			}
		}
		conn, err := b.reg.Get(name)
		if err != nil {
			lastErr = err
			continue
		}
		result, err := conn.Query(ctx, &base.Query{Statement: statement, Parameters: params})
		if err != nil {
			lastErr = err
			continue
		}
		rows = append(rows, result.Rows...)
		queried = append(queried, name)
	}

	if len(queried) == 0 {
		return types.ExpertRecommendation{}, types.NewError(types.ErrTransientBackend, req.ID, "no data connector could be queried", lastErr)
	}

	confidence := float64(len(queried)) / float64(len(names))
	return types.ExpertRecommendation{
		Output: map[string]interface{}{
			"rows":                rows,
			"row_count":           len(rows),
			"queried_connectors": queried,
		},
		Confidence: confidence,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
