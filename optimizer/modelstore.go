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
	"encoding/json"
	"fmt"

	"github.com/taskmesh/expertrouter/connectors/base"
)

// ModelStore persists a trained model's serialized snapshot so a
// freshly-started orchestrator instance resumes with the last accepted
// model rather than UniformScorer (spec §4.7: "pluggable model store —
// S3, Azure Blob, or GCS").
type ModelStore interface {
	Save(ctx context.Context, model *CentroidScorer) error
	Load(ctx context.Context) (*CentroidScorer, error)
}

// ObjectModelStore persists the model as a single JSON object through
// any base.Connector — connectors/s3, connectors/azureblob, and
// connectors/gcs all implement it identically (query/execute against
// statement "get_object"/action "put_object"), so ObjectModelStore
// works unmodified against whichever object store is configured.
type ObjectModelStore struct {
	conn   base.Connector
	bucket string
	key    string
}

// NewObjectModelStore wraps conn (already Connect()-ed) targeting
// bucket/key for the model snapshot.
func NewObjectModelStore(conn base.Connector, bucket, key string) *ObjectModelStore {
	if key == "" {
		key = "expertrouter/learned-model.json"
	}
	return &ObjectModelStore{conn: conn, bucket: bucket, key: key}
}

func (s *ObjectModelStore) Save(ctx context.Context, model *CentroidScorer) error {
	raw, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("optimizer: marshal model: %w", err)
	}
	_, err = s.conn.Execute(ctx, &base.Command{
		Action: "put_object",
		Parameters: map[string]interface{}{
			"bucket":       s.bucket,
			"key":          s.key,
			"content":      string(raw),
			"content_type": "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("optimizer: save model snapshot: %w", err)
	}
	return nil
}

func (s *ObjectModelStore) Load(ctx context.Context) (*CentroidScorer, error) {
	result, err := s.conn.Query(ctx, &base.Query{
		Statement: "get_object",
		Parameters: map[string]interface{}{
			"bucket": s.bucket,
			"key":    s.key,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("optimizer: load model snapshot: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, nil
	}
	content, _ := result.Rows[0]["content"].(string)
	if content == "" {
		return nil, nil
	}
	var model CentroidScorer
	if err := json.Unmarshal([]byte(content), &model); err != nil {
		return nil, fmt.Errorf("optimizer: unmarshal model snapshot: %w", err)
	}
	return &model, nil
}
