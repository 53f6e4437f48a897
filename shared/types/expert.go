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

package types

import "time"

// ExpertType is one of the seven base types that MUST exist at startup, or
// a dynamic scenario tag synthesized by the registry (spec §3, §4.2).
type ExpertType string

const (
	ExpertTechnical   ExpertType = "technical"
	ExpertAPI         ExpertType = "api"
	ExpertBusiness    ExpertType = "business"
	ExpertData        ExpertType = "data"
	ExpertIntegration ExpertType = "integration"
	ExpertSecurity    ExpertType = "security"
	ExpertPerformance ExpertType = "performance"
)

// BaseExpertTypes lists the seven types the registry guarantees exist at
// startup (spec §3).
var BaseExpertTypes = []ExpertType{
	ExpertTechnical, ExpertAPI, ExpertBusiness, ExpertData,
	ExpertIntegration, ExpertSecurity, ExpertPerformance,
}

// ExpertStatus is the lifecycle state of an Expert (spec §3 invariants).
type ExpertStatus string

const (
	StatusIdle     ExpertStatus = "idle"
	StatusBusy     ExpertStatus = "busy"
	StatusDegraded ExpertStatus = "degraded"
	StatusOffline  ExpertStatus = "offline"
)

// PerformanceStats is the rolling window of an Expert's observed behavior,
// used by the invoker's degrade logic and the aggregator's expert_weight.
type PerformanceStats struct {
	Calls          int64     `json:"calls"`
	Successes      int64     `json:"successes"`
	ConsecFailures int       `json:"consec_failures"`
	AvgLatencyMs   float64   `json:"avg_latency_ms"`
	AvgConfidence  float64   `json:"avg_confidence"`
}

// SuccessRate returns the rolling success rate, or 1.0 when there is no
// history yet (a fresh expert starts with full trust).
func (p PerformanceStats) SuccessRate() float64 {
	if p.Calls == 0 {
		return 1.0
	}
	return float64(p.Successes) / float64(p.Calls)
}

// Expert is a typed, stateful analyzer. Capability vectors and performance
// stats are read far more often than written, so the registry hands out
// copies of Expert rather than pointers into its own maps (spec §5:
// "reads are lock-free snapshots").
type Expert struct {
	ID                string             `json:"id"`
	Type              ExpertType         `json:"type"`
	CapabilityVector  map[string]float64 `json:"capability_vector"`
	Status            ExpertStatus       `json:"status"`
	Stats             PerformanceStats   `json:"performance_stats"`
	CreatedAt         time.Time          `json:"created_at"`
	LastUsedAt        time.Time          `json:"last_used_at"`
	DegradedUntil     *time.Time         `json:"degraded_until,omitempty"`
	ScenarioSignature string             `json:"scenario_signature,omitempty"`
}

// IsDynamic reports whether this Expert was synthesized by the registry
// rather than one of the seven base types.
func (e Expert) IsDynamic() bool {
	for _, t := range BaseExpertTypes {
		if e.Type == t {
			return false
		}
	}
	return true
}

// Eligible reports whether the invoker may select this expert right now
// (spec §3: "A degraded or offline Expert MUST NOT be selected").
func (e Expert) Eligible() bool {
	return e.Status == StatusIdle
}

// CapabilityScore is the dot product of the expert's capability vector
// against the request's capability needs, the scoring function the
// registry's find() ranks by (spec §4.2).
func (e Expert) CapabilityScore(needs map[string]float64) float64 {
	var score float64
	for capability, weight := range needs {
		score += e.CapabilityVector[capability] * weight
	}
	return score
}

// ExpertRecommendation is what a single expert invocation produces.
type ExpertRecommendation struct {
	ExpertID  string      `json:"expert_id"`
	Output    interface{} `json:"output"`
	Confidence float64    `json:"confidence"`
	LatencyMs int64       `json:"latency_ms"`
	Error     string      `json:"error,omitempty"`
}

// Failed reports whether this recommendation carries an error, which
// excludes it from aggregation (spec §4.4 step 1).
func (r ExpertRecommendation) Failed() bool {
	return r.Error != ""
}
