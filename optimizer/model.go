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
	"math"

	"github.com/taskmesh/expertrouter/shared/types"
)

// CentroidScorer is the learned model trained from RoutingObservations.
// For each Outcome it keeps the reward-weighted mean feature vector of
// observations that chose it; scoring a new feature vector ranks
// outcomes by inverse distance to their centroid, softmax-normalized
// into a probability distribution. It implements router.Scorer without
// importing the router package, the same structural-typing pattern
// invoker.StatusTracker and aggregator.StatsSource use to avoid an
// import cycle back to the packages that consume them.
type CentroidScorer struct {
	Centroids map[types.Outcome]map[string]float64 `json:"centroids"`
	Weight    map[types.Outcome]float64             `json:"weight"` // total reward-weight backing each centroid
}

func (m *CentroidScorer) Score(features map[string]float64) map[types.Outcome]float64 {
	type distScore struct {
		outcome types.Outcome
		dist    float64
	}
	dists := make([]distScore, 0, len(m.Centroids))
	for outcome, centroid := range m.Centroids {
		dists = append(dists, distScore{outcome: outcome, dist: euclidean(features, centroid)})
	}
	if len(dists) == 0 {
		return map[types.Outcome]float64{}
	}

	// Softmax over negative distance: closer centroids score higher.
	var sumExp float64
	scores := make(map[types.Outcome]float64, len(dists))
	for _, d := range dists {
		e := math.Exp(-d.dist)
		scores[d.outcome] = e
		sumExp += e
	}
	out := make(map[types.Outcome]float64, len(scores))
	for outcome, e := range scores {
		if sumExp > 0 {
			out[outcome] = e / sumExp
		}
	}
	return out
}

func euclidean(a, b map[string]float64) float64 {
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

// trainCentroidScorer fits a CentroidScorer on obs, weighting each
// observation's contribution to its outcome's centroid by
// max(reward, 0) — an observation with a non-positive reward pulls no
// weight toward reinforcing its outcome, but doesn't actively pull
// away from it either, keeping the model simple and numerically
// stable with the small observation counts a single orchestrator
// deployment produces.
func trainCentroidScorer(obs []types.RoutingObservation) *CentroidScorer {
	sums := map[types.Outcome]map[string]float64{}
	weights := map[types.Outcome]float64{}

	for _, o := range obs {
		w := o.Reward
		if w < 0 {
			w = 0
		}
		w += 0.01 // every observation contributes a floor weight so rare outcomes still get a centroid
		if sums[o.Decision] == nil {
			sums[o.Decision] = map[string]float64{}
		}
		for k, v := range o.Features {
			sums[o.Decision][k] += v * w
		}
		weights[o.Decision] += w
	}

	centroids := make(map[types.Outcome]map[string]float64, len(sums))
	for outcome, featureSums := range sums {
		w := weights[outcome]
		centroid := make(map[string]float64, len(featureSums))
		for k, v := range featureSums {
			if w > 0 {
				centroid[k] = v / w
			}
		}
		centroids[outcome] = centroid
	}

	return &CentroidScorer{Centroids: centroids, Weight: weights}
}

// evaluateReward scores how well model would have performed on a
// holdout set: for each observation, 1 if the model's top-ranked
// outcome matches the observation's actual (rewarded) decision and the
// observation's own reward was positive, -1 if the model would have
// picked a different outcome than one that was positively rewarded,
// and 0 otherwise. The mean over the holdout set is the candidate
// model's holdout reward, compared against the current model's by the
// optimizer's regression guard.
func evaluateReward(model *CentroidScorer, holdout []types.RoutingObservation) float64 {
	if len(holdout) == 0 {
		return 0
	}
	var total float64
	for _, o := range holdout {
		if o.Reward <= 0 {
			continue
		}
		probs := model.Score(o.Features)
		best := bestOutcome(probs)
		if best == o.Decision {
			total += o.Reward
		} else {
			total -= o.Reward
		}
	}
	return total / float64(len(holdout))
}

func bestOutcome(probs map[types.Outcome]float64) types.Outcome {
	var best types.Outcome
	var bestProb = -1.0
	for outcome, prob := range probs {
		if prob > bestProb {
			best = outcome
			bestProb = prob
		}
	}
	return best
}
