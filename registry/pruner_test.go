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
	"testing"
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

func TestPruner_NeverPrunesBaseExperts(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewPruner(reg, time.Millisecond, time.Millisecond)

	now := time.Now()
	p.sweep(now)
	p.sweep(now.Add(2 * time.Millisecond))

	if len(reg.List()) != len(types.BaseExpertTypes) {
		t.Fatalf("expected base experts to survive sweep, got %d", len(reg.List()))
	}
}

func TestPruner_PrunesZeroCallDynamicExpertAfterRetentionWindow(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewPruner(reg, time.Millisecond, 5*time.Millisecond)

	req := types.Request{ID: "req-1", Kind: types.KindCustom, Context: map[string]interface{}{"x": true}}
	if _, err := reg.FindOrSynthesize(req, 1); err != nil {
		t.Fatalf("FindOrSynthesize() error = %v", err)
	}

	signature := ScenarioSignature(req)
	dynID := "dyn:" + signature

	start := time.Now()
	p.sweep(start) // establishes baseline, does not prune yet
	if _, ok := reg.Get(dynID); !ok {
		t.Fatalf("expected %q to exist right after synthesis", dynID)
	}

	p.sweep(start.Add(10 * time.Millisecond)) // past retention, zero calls since baseline
	if _, ok := reg.Get(dynID); ok {
		t.Errorf("expected %q to be pruned after inactivity window", dynID)
	}
}

func TestPruner_DoesNotPruneDynamicExpertWithRecentCalls(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewPruner(reg, time.Millisecond, 5*time.Millisecond)

	req := types.Request{ID: "req-1", Kind: types.KindCustom, Context: map[string]interface{}{"x": true}}
	if _, err := reg.FindOrSynthesize(req, 1); err != nil {
		t.Fatalf("FindOrSynthesize() error = %v", err)
	}
	signature := ScenarioSignature(req)
	dynID := "dyn:" + signature

	start := time.Now()
	p.sweep(start)

	reg.MarkBusy(dynID)
	reg.RecordOutcome(dynID, true, 10, 0.9, time.Minute)

	p.sweep(start.Add(10 * time.Millisecond))
	if _, ok := reg.Get(dynID); !ok {
		t.Error("expected expert with a recent call to survive the sweep")
	}
}
