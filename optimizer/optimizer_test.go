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
	"testing"
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

type fakeHistory struct{ recorded []types.RoutingObservation }

func (f *fakeHistory) Record(obs types.RoutingObservation) { f.recorded = append(f.recorded, obs) }

func observation(decision types.Outcome, reward, complexity float64) types.RoutingObservation {
	return types.RoutingObservation{
		RequestID: "req",
		Features:  map[string]float64{"complexity": complexity},
		Decision:  decision,
		Reward:    reward,
		Timestamp: time.Now(),
	}
}

func TestOptimizer_SubmitDropsOldestWhenFull(t *testing.T) {
	o := New(NewMemoryObservationStore(), &fakeHistory{}, nil, nil, Config{SubmitQueueSize: 2})
	o.Submit(observation(types.OutcomeAuto, 1, 0.1))
	o.Submit(observation(types.OutcomeAuto, 1, 0.2))
	o.Submit(observation(types.OutcomeAuto, 1, 0.3)) // should not block despite full buffer

	if len(o.submit) != 2 {
		t.Errorf("expected buffer to stay at capacity 2, got %d", len(o.submit))
	}
}

func TestOptimizer_RunAppendsAndRecordsObservations(t *testing.T) {
	store := NewMemoryObservationStore()
	history := &fakeHistory{}
	o := New(store, history, nil, nil, Config{RetrainInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)

	o.Submit(observation(types.OutcomeAuto, 1, 0.1))
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	n, _ := store.Count(context.Background())
	if n != 1 {
		t.Errorf("expected 1 observation appended, got %d", n)
	}
	if len(history.recorded) != 1 {
		t.Errorf("expected 1 observation recorded to history, got %d", len(history.recorded))
	}
}

func TestTrainCentroidScorer_SeparatesOutcomesByFeature(t *testing.T) {
	obs := []types.RoutingObservation{
		observation(types.OutcomeAuto, 1.0, 0.1),
		observation(types.OutcomeAuto, 1.0, 0.15),
		observation(types.OutcomeHuman, 1.0, 0.9),
		observation(types.OutcomeHuman, 1.0, 0.95),
	}
	model := trainCentroidScorer(obs)

	lowComplexity := model.Score(map[string]float64{"complexity": 0.12})
	if bestOutcome(lowComplexity) != types.OutcomeAuto {
		t.Errorf("expected low-complexity features to score closest to AUTO centroid, got %v", lowComplexity)
	}

	highComplexity := model.Score(map[string]float64{"complexity": 0.93})
	if bestOutcome(highComplexity) != types.OutcomeHuman {
		t.Errorf("expected high-complexity features to score closest to HUMAN centroid, got %v", highComplexity)
	}
}

func TestOptimizer_RetrainRejectsRegression(t *testing.T) {
	store := NewMemoryObservationStore()
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		store.Append(ctx, observation(types.OutcomeAuto, 1.0, 0.1))
	}
	for i := 0; i < 30; i++ {
		store.Append(ctx, observation(types.OutcomeHuman, 1.0, 0.9))
	}

	var swapped *CentroidScorer
	adapter := NewLearnedAdapter(func(m *CentroidScorer) { swapped = m })
	o := New(store, &fakeHistory{}, adapter, nil, Config{})

	o.retrain(ctx)
	if swapped == nil {
		t.Fatal("expected first retrain (no current model yet) to be accepted")
	}
	firstModel := o.currentModel

	// A second retrain over the same well-separated data should not
	// regress, and should still swap.
	o.retrain(ctx)
	if o.currentModel == nil {
		t.Fatal("expected a current model after second retrain")
	}
	_ = firstModel
}
