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
	"math"
	"sort"
	"sync"

	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultNeighbors is K in the history strategy's K-nearest-neighbour
// vote (spec §4.6).
const DefaultNeighbors = 7

// DefaultHistoryWindow caps how many recent observations HistoryStrategy
// retains in memory for the nearest-neighbour search.
const DefaultHistoryWindow = 5000

// HistoryStrategy votes with the majority outcome among the K nearest
// past RoutingObservations by feature-vector distance.
type HistoryStrategy struct {
	mu           sync.RWMutex
	observations []types.RoutingObservation
	k            int
	window       int
}

// NewHistoryStrategy constructs an empty HistoryStrategy. k and window
// fall back to DefaultNeighbors/DefaultHistoryWindow when zero.
func NewHistoryStrategy(k, window int) *HistoryStrategy {
	if k <= 0 {
		k = DefaultNeighbors
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &HistoryStrategy{k: k, window: window}
}

// Record appends an observation, dropping the oldest once window is
// exceeded (spec §4.7: "a full observation buffer drops oldest-first").
func (s *HistoryStrategy) Record(obs types.RoutingObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = append(s.observations, obs)
	if len(s.observations) > s.window {
		s.observations = s.observations[len(s.observations)-s.window:]
	}
}

func (s *HistoryStrategy) Name() string { return "history" }

func (s *HistoryStrategy) Evaluate(_ context.Context, req types.Request) candidate {
	features := requestFeatures(req)

	s.mu.RLock()
	observations := append([]types.RoutingObservation(nil), s.observations...)
	s.mu.RUnlock()

	if len(observations) == 0 {
		return candidate{outcome: types.OutcomeAuto, confidence: 0}
	}

	type scored struct {
		obs  types.RoutingObservation
		dist float64
	}
	ranked := make([]scored, len(observations))
	for i, obs := range observations {
		ranked[i] = scored{obs: obs, dist: euclideanDistance(features, obs.Features)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	k := s.k
	if k > len(ranked) {
		k = len(ranked)
	}

	votes := make(map[types.Outcome]int, 4)
	for _, r := range ranked[:k] {
		votes[r.obs.Decision]++
	}

	var winner types.Outcome
	var winnerVotes int
	for outcome, count := range votes {
		if count > winnerVotes || (count == winnerVotes && outcomeRank(outcome) < outcomeRank(winner)) {
			winner = outcome
			winnerVotes = count
		}
	}

	return candidate{outcome: winner, confidence: float64(winnerVotes) / float64(k)}
}

// requestFeatures derives the numeric feature vector a Request maps to
// for nearest-neighbour comparison against RoutingObservation.Features.
func requestFeatures(req types.Request) map[string]float64 {
	f := map[string]float64{
		"complexity": req.Metadata.Complexity,
	}
	switch req.Metadata.RiskLevel {
	case types.RiskLow:
		f["risk"] = 0.0
	case types.RiskMedium:
		f["risk"] = 0.33
	case types.RiskHigh:
		f["risk"] = 0.66
	case types.RiskCritical:
		f["risk"] = 1.0
	}
	if req.Metadata.Environment == types.EnvProd {
		f["prod"] = 1.0
	}
	if req.Metadata.SystemImpact == "high" {
		f["system_impact"] = 1.0
	}
	return f
}

func euclideanDistance(a, b map[string]float64) float64 {
	seen := make(map[string]struct{}, len(a)+len(b))
	var sum float64
	for k, v := range a {
		seen[k] = struct{}{}
		d := v - b[k]
		sum += d * d
	}
	for k, v := range b {
		if _, ok := seen[k]; ok {
			continue
		}
		sum += v * v
	}
	return math.Sqrt(sum)
}
