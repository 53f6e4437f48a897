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
	"fmt"
	"time"

	"context"

	"github.com/taskmesh/expertrouter/connectors/base"
	"github.com/taskmesh/expertrouter/shared/types"
)

// HTTPBackend serves any expert type reachable over a REST API — the
// "api", "business", and "integration" base expert types (spec §3) all
// delegate to an instance of this backend pointed at their respective
// downstream service, via whichever base.Connector implements the HTTP
// transport (connectors/http.HTTPConnector in production).
type HTTPBackend struct {
	conn base.Connector
	path string
}

// NewHTTPBackend wraps conn (already Connect()-ed to its base URL),
// POSTing every request to path.
func NewHTTPBackend(conn base.Connector, path string) *HTTPBackend {
	if path == "" {
		path = "/analyze"
	}
	return &HTTPBackend{conn: conn, path: path}
}

func (b *HTTPBackend) Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	start := time.Now()
	result, err := b.conn.Execute(ctx, &base.Command{
		Action:    "POST",
		Statement: b.path,
		Parameters: map[string]interface{}{
			"request_id": req.ID,
			"kind":       string(req.Kind),
			"priority":   string(req.Priority),
			"payload":    req.Payload,
			"metadata":   req.Metadata,
		},
	})
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		return types.ExpertRecommendation{}, types.NewError(types.ErrTransientBackend, req.ID, "http expert backend call failed", err)
	}
	if !result.Success {
		return types.ExpertRecommendation{}, fmt.Errorf("backends: http expert backend reported failure: %s", result.Message)
	}

	output := result.Metadata
	if output == nil {
		output = map[string]interface{}{}
	}
	confidence, _ := output["confidence"].(float64)
	if confidence == 0 {
		confidence = 0.6 // no explicit confidence signal from the downstream service
	}

	return types.ExpertRecommendation{
		Output:     output,
		Confidence: confidence,
		LatencyMs:  latencyMs,
	}, nil
}
