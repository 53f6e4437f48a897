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

package aggregator

import (
	"sort"

	"github.com/taskmesh/expertrouter/shared/types"
)

// Defaults from spec §4.4.
const (
	DefaultConfFloor           = 0.2
	DefaultEscalationThresh    = 0.7
	DefaultHumanPriorityWeight = 3.0
)

// Expert weight bounds (spec §4.4: "bounded to [0.5, 2.0] to prevent
// runaway").
const (
	minExpertWeight = 0.5
	maxExpertWeight = 2.0
)

// StatsSource resolves an expert's rolling success rate for the
// expert_weight derivation. *registry.Registry satisfies this via its
// Get method.
type StatsSource interface {
	Get(id string) (types.Expert, bool)
}

// Config tunes Aggregator behavior; zero values fall back to the spec
// §4.4 defaults.
type Config struct {
	ConfFloor           float64
	EscalationThreshold float64
	HumanPriorityWeight float64
}

func (c Config) withDefaults() Config {
	if c.ConfFloor <= 0 {
		c.ConfFloor = DefaultConfFloor
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = DefaultEscalationThresh
	}
	if c.HumanPriorityWeight <= 0 {
		c.HumanPriorityWeight = DefaultHumanPriorityWeight
	}
	return c
}

// Aggregator implements spec §4.4.
type Aggregator struct {
	stats StatsSource
	cfg   Config
}

// New constructs an Aggregator. stats may be nil, in which case every
// expert gets a neutral weight of 1.0 (useful for tests and for the
// AUTO path, which has no experts to weight).
func New(stats StatsSource, cfg Config) *Aggregator {
	return &Aggregator{stats: stats, cfg: cfg.withDefaults()}
}

// Result is what Merge returns: the AggregatedResult plus whether the
// dissent among experts is high enough to warrant human escalation
// (spec §4.4 step 3), which is a side channel the orchestrator acts on
// rather than a field of AggregatedResult itself.
type Result struct {
	types.AggregatedResult
	NeedsEscalation bool
}

// Merge implements the spec §4.4 algorithm: filter, weight, merge,
// compute dissent, apply human override, clamp confidence.
func (a *Aggregator) Merge(recs []types.ExpertRecommendation, humanInput interface{}, decision types.RoutingDecision) Result {
	kept := make([]types.ExpertRecommendation, 0, len(recs))
	for _, r := range recs {
		if r.Failed() || r.Confidence < a.cfg.ConfFloor {
			continue
		}
		kept = append(kept, r)
	}

	if len(kept) == 0 && humanInput == nil {
		return Result{
			AggregatedResult: types.AggregatedResult{
				RequestID:      decision.RequestID,
				Recommendation: decision.Rationale,
				Confidence:     0,
			},
		}
	}

	weights := make([]float64, len(kept))
	confidences := make([]float64, len(kept))
	contributing := make([]string, len(kept))
	for i, r := range kept {
		weights[i] = a.expertWeight(r.ExpertID) * r.Confidence
		confidences[i] = r.Confidence
		contributing[i] = r.ExpertID
	}

	dissent := dissentScore(confidences)

	merged := weightedMergeOutputs(kept, weights)
	var totalWeight float64
	var weightedConfSum float64
	for i, w := range weights {
		totalWeight += w
		weightedConfSum += w * confidences[i]
	}

	if humanInput != nil {
		merged = applyHumanOverride(merged, humanInput)
		totalWeight += a.cfg.HumanPriorityWeight
		weightedConfSum += a.cfg.HumanPriorityWeight * 1.0 // a delivered human response is taken as fully confident
	}

	confidence := 0.0
	if totalWeight > 0 {
		confidence = weightedConfSum / totalWeight
	}

	result := types.AggregatedResult{
		RequestID:           decision.RequestID,
		Recommendation:      merged,
		Confidence:          clamp01(confidence),
		ContributingExperts: contributing,
		DissentScore:        dissent,
		HumanInput:          humanInput,
	}

	return Result{
		AggregatedResult: result,
		NeedsEscalation:  humanInput == nil && dissent > a.cfg.EscalationThreshold,
	}
}

// expertWeight derives expert_weight from rolling success rate,
// linearly mapped from [0,1] onto [0.5, 2.0] (spec §4.4 step 2).
func (a *Aggregator) expertWeight(expertID string) float64 {
	rate := 1.0
	if a.stats != nil {
		if e, ok := a.stats.Get(expertID); ok {
			rate = e.Stats.SuccessRate()
		}
	}
	w := minExpertWeight + rate*(maxExpertWeight-minExpertWeight)
	if w < minExpertWeight {
		w = minExpertWeight
	}
	if w > maxExpertWeight {
		w = maxExpertWeight
	}
	return w
}

// dissentScore is the normalized variance of per-expert confidence,
// mapped from [0, 0.25] (the maximum variance of values bounded in
// [0,1]) onto [0,1] (spec §4.4 step 3).
func dissentScore(confidences []float64) float64 {
	if len(confidences) < 2 {
		return 0
	}
	var mean float64
	for _, c := range confidences {
		mean += c
	}
	mean /= float64(len(confidences))

	var variance float64
	for _, c := range confidences {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(confidences))

	return clamp01(variance / 0.25)
}

// weightedMergeOutputs combines recommendation outputs. When every
// output is a map[string]interface{}, each key's value is the one
// carried by the highest-weighted recommendation that sets it,
// matching the field-level semantics spec §4.4 step 4 requires for the
// human override. Otherwise it falls back to the single
// highest-weighted output, the same degrade-to-simplest-thing pattern
// the teacher's aggregator uses when structured synthesis isn't
// possible.
func weightedMergeOutputs(recs []types.ExpertRecommendation, weights []float64) interface{} {
	allMaps := true
	for _, r := range recs {
		if _, ok := r.Output.(map[string]interface{}); !ok {
			allMaps = false
			break
		}
	}

	if !allMaps {
		bestIdx := 0
		for i, w := range weights {
			if w > weights[bestIdx] {
				bestIdx = i
			}
		}
		return recs[bestIdx].Output
	}

	bestWeightForKey := map[string]float64{}
	merged := map[string]interface{}{}
	for i, r := range recs {
		m := r.Output.(map[string]interface{})
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys) // deterministic iteration for equal-weight ties
		for _, k := range keys {
			if w := weights[i]; w >= bestWeightForKey[k] {
				bestWeightForKey[k] = w
				merged[k] = m[k]
			}
		}
	}
	return merged
}

// applyHumanOverride folds humanInput's fields into merged, overriding
// whatever keys it addresses (spec §4.4 step 4). When merged isn't a
// map, the human response simply replaces it outright.
func applyHumanOverride(merged interface{}, humanInput interface{}) interface{} {
	humanMap, ok := humanInput.(map[string]interface{})
	if !ok {
		return humanInput
	}
	mergedMap, ok := merged.(map[string]interface{})
	if !ok {
		out := make(map[string]interface{}, len(humanMap))
		for k, v := range humanMap {
			out[k] = v
		}
		return out
	}
	out := make(map[string]interface{}, len(mergedMap)+len(humanMap))
	for k, v := range mergedMap {
		out[k] = v
	}
	for k, v := range humanMap {
		out[k] = v
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
