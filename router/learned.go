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

package router

import (
	"context"
	"sync/atomic"

	"github.com/taskmesh/expertrouter/shared/types"
)

// Scorer is a lightweight parametric model over hand-crafted request
// features, trained by the optimizer package (spec §4.6 "Learned
// model", §4.7). It returns a probability per outcome; probabilities
// need not sum exactly to 1, LearnedStrategy normalises.
type Scorer interface {
	Score(features map[string]float64) map[types.Outcome]float64
}

// UniformScorer is the zero-value scorer LearnedStrategy starts with
// before the optimizer has trained anything: every outcome is equally
// likely, so the strategy contributes a flat, low-confidence vote until
// real training data exists.
type UniformScorer struct{}

func (UniformScorer) Score(map[string]float64) map[types.Outcome]float64 {
	return map[types.Outcome]float64{
		types.OutcomeAuto:        0.25,
		types.OutcomeExpert:      0.25,
		types.OutcomeHuman:       0.25,
		types.OutcomeConditional: 0.25,
	}
}

// LearnedStrategy wraps the current Scorer behind an atomic pointer so
// the optimizer can swap in a newly-trained model without readers ever
// observing a half-updated one (spec §4.7, §5: "the scorer in use by
// the router is swapped atomically — readers never observe a
// half-updated model").
type LearnedStrategy struct {
	current atomic.Pointer[Scorer]
}

// NewLearnedStrategy constructs a LearnedStrategy seeded with
// UniformScorer.
func NewLearnedStrategy() *LearnedStrategy {
	s := &LearnedStrategy{}
	var seed Scorer = UniformScorer{}
	s.current.Store(&seed)
	return s
}

// Swap atomically installs model as the strategy's active Scorer. This
// is the publish side of the optimizer's regression-guarded retrain
// cycle.
func (s *LearnedStrategy) Swap(model Scorer) {
	s.current.Store(&model)
}

func (s *LearnedStrategy) Name() string { return "learned" }

func (s *LearnedStrategy) Evaluate(_ context.Context, req types.Request) candidate {
	scorer := *s.current.Load()
	probs := scorer.Score(requestFeatures(req))

	var best types.Outcome
	var bestProb float64 = -1
	for outcome, prob := range probs {
		if prob > bestProb || (prob == bestProb && outcomeRank(outcome) < outcomeRank(best)) {
			best = outcome
			bestProb = prob
		}
	}
	if bestProb < 0 {
		return candidate{outcome: types.OutcomeAuto, confidence: 0}
	}
	return candidate{outcome: best, confidence: bestProb}
}
