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
	"context"
	"testing"

	"github.com/taskmesh/expertrouter/connectors/base"
	"github.com/taskmesh/expertrouter/connectors/registry"
	"github.com/taskmesh/expertrouter/shared/types"
)

func registerFake(t *testing.T, reg *registry.Registry, name string, conn *fakeConnector) {
	t.Helper()
	if err := reg.Register(name, conn, &base.ConnectorConfig{Name: name, Type: "fake", Timeout: 0}); err != nil {
		t.Fatalf("failed to register %s: %v", name, err)
	}
}

func TestDataBackend_InvokeFansOutAcrossConnectors(t *testing.T) {
	reg := registry.NewRegistry()
	pg := &fakeConnector{queryResult: &base.QueryResult{Rows: []map[string]interface{}{{"id": 1}}}}
	mongo := &fakeConnector{queryResult: &base.QueryResult{Rows: []map[string]interface{}{{"id": 2}}}}
	registerFake(t, reg, "postgres-main", pg)
	registerFake(t, reg, "mongo-main", mongo)

	b := NewDataBackend(reg, []string{"postgres-main", "mongo-main"})
	req := types.Request{ID: "req-1", Payload: map[string]interface{}{"query": "SELECT 1"}}

	rec, err := b.Invoke(context.Background(), types.Expert{ID: "data-1"}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := rec.Output.(map[string]interface{})
	if out["row_count"].(int) != 2 {
		t.Errorf("expected 2 rows across both connectors, got %v", out["row_count"])
	}
	if rec.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 when all connectors answer, got %v", rec.Confidence)
	}
}

func TestDataBackend_InvokeToleratesPartialFailure(t *testing.T) {
	reg := registry.NewRegistry()
	ok := &fakeConnector{queryResult: &base.QueryResult{Rows: []map[string]interface{}{{"id": 1}}}}
	failing := &fakeConnector{queryErr: context.DeadlineExceeded}
	registerFake(t, reg, "ok-store", ok)
	registerFake(t, reg, "down-store", failing)

	b := NewDataBackend(reg, []string{"ok-store", "down-store"})
	req := types.Request{ID: "req-2", Payload: map[string]interface{}{"query": "SELECT 1"}}

	rec, err := b.Invoke(context.Background(), types.Expert{ID: "data-1"}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5 with one of two connectors answering, got %v", rec.Confidence)
	}
}

func TestDataBackend_InvokeRequiresQueryField(t *testing.T) {
	reg := registry.NewRegistry()
	b := NewDataBackend(reg, []string{"anything"})

	_, err := b.Invoke(context.Background(), types.Expert{ID: "data-1"}, types.Request{ID: "req-3"})
	if err == nil {
		t.Fatal("expected an error when the payload has no query field")
	}
}

func TestDataBackend_InvokeFailsWhenNoConnectorReachable(t *testing.T) {
	reg := registry.NewRegistry()
	b := NewDataBackend(reg, []string{"missing"})
	req := types.Request{ID: "req-4", Payload: map[string]interface{}{"query": "SELECT 1"}}

	_, err := b.Invoke(context.Background(), types.Expert{ID: "data-1"}, req)
	if err == nil {
		t.Fatal("expected an error when no connector could be reached")
	}
}
