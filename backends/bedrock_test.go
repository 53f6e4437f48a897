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
	"errors"
	"testing"
	"time"

	"github.com/taskmesh/expertrouter/connectors/config"
	"github.com/taskmesh/expertrouter/shared/types"
)

func TestConfidenceFromStopReason(t *testing.T) {
	cases := map[string]float64{
		"end_turn":      0.85,
		"stop_sequence": 0.85,
		"max_tokens":    0.5,
		"":              0.6,
		"other":         0.6,
	}
	for reason, want := range cases {
		if got := confidenceFromStopReason(reason); got != want {
			t.Errorf("confidenceFromStopReason(%q) = %v, want %v", reason, got, want)
		}
	}
}

func TestClassifyBedrockError_TagsTransient(t *testing.T) {
	err := classifyBedrockError(errors.New("throttled"))
	var rErr *types.Error
	if !errors.As(err, &rErr) {
		t.Fatalf("expected a *types.Error, got %T", err)
	}
	if rErr.Kind != types.ErrTransientBackend {
		t.Errorf("expected ErrTransientBackend, got %v", rErr.Kind)
	}
}

func TestBuildTechnicalPrompt_IncludesRequestKindAndPriority(t *testing.T) {
	req := types.Request{Kind: types.KindAnalysis, Priority: types.PriorityHigh, Payload: "summarize this"}
	prompt := buildTechnicalPrompt(req)
	if prompt == "" {
		t.Fatal("expected a non-empty prompt")
	}
}

func TestSelectTarget_PrefersLowestPriorityTier(t *testing.T) {
	b := &BedrockBackend{targets: []*bedrockTarget{
		{modelID: "low-priority", priority: 5, weight: 1},
		{modelID: "high-a", priority: 1, weight: 1},
		{modelID: "high-b", priority: 1, weight: 1},
	}}
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[b.selectTarget(now).modelID] = true
	}
	if seen["low-priority"] {
		t.Fatal("selectTarget chose a worse-priority target while a better tier was healthy")
	}
	if !seen["high-a"] || !seen["high-b"] {
		t.Fatalf("expected weighted selection to visit both top-tier targets, got %v", seen)
	}
}

func TestSelectTarget_SkipsDegradedTarget(t *testing.T) {
	now := time.Now()
	bad := &bedrockTarget{modelID: "bad", priority: 1, weight: 1}
	bad.recordFailure(now)
	bad.recordFailure(now)
	bad.recordFailure(now) // three consecutive failures degrades it
	good := &bedrockTarget{modelID: "good", priority: 1, weight: 1}

	b := &BedrockBackend{targets: []*bedrockTarget{bad, good}}
	for i := 0; i < 5; i++ {
		if got := b.selectTarget(now).modelID; got != "good" {
			t.Fatalf("selectTarget() = %q, want the only healthy target %q", got, "good")
		}
	}
}

func TestSelectTarget_AllDegradedFallsBackToFullSet(t *testing.T) {
	now := time.Now()
	t1 := &bedrockTarget{modelID: "a", priority: 1, weight: 1}
	t2 := &bedrockTarget{modelID: "b", priority: 1, weight: 1}
	for _, t := range []*bedrockTarget{t1, t2} {
		t.recordFailure(now)
		t.recordFailure(now)
		t.recordFailure(now)
	}
	b := &BedrockBackend{targets: []*bedrockTarget{t1, t2}}
	got := b.selectTarget(now)
	if got == nil {
		t.Fatal("expected a target even when every target is degraded")
	}
}

func TestNewBedrockBackendFromProviders_SkipsProvidersWithoutModelID(t *testing.T) {
	providers := []*config.LLMProviderConfig{
		{Enabled: true, Config: map[string]interface{}{}},
		{Enabled: true, Priority: 2, Weight: 3, Config: map[string]interface{}{"model_id": "anthropic.claude-3-haiku"}},
	}
	b := NewBedrockBackendFromProviders(nil, providers, "fallback-model")
	if len(b.targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(b.targets))
	}
	if b.targets[0].modelID != "anthropic.claude-3-haiku" {
		t.Fatalf("expected the provider with a model_id to be kept, got %q", b.targets[0].modelID)
	}
}

func TestNewBedrockBackendFromProviders_FallsBackWhenNoneUsable(t *testing.T) {
	b := NewBedrockBackendFromProviders(nil, nil, "fallback-model")
	if len(b.targets) != 1 || b.targets[0].modelID != "fallback-model" {
		t.Fatalf("expected a single fallback target, got %+v", b.targets)
	}
}
