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

// Kind is the category of a Request, used by the router's rule strategy
// and by the registry when matching experts.
type Kind string

const (
	KindAnalysis    Kind = "analysis"
	KindGeneration  Kind = "generation"
	KindReview      Kind = "review"
	KindDeployment  Kind = "deployment"
	KindConfig      Kind = "config"
	KindMaintenance Kind = "maintenance"
	KindCustom      Kind = "custom"
)

// Priority is the caller-declared urgency of a Request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// RiskLevel classifies how much damage a mishandled Request could do.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "med"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Environment is where the Request's effect would land.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// Role is the requester's declared role, consumed by the router's role
// strategy.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
)

// Metadata carries the signals the router and experts need to make a
// decision. Complexity and RiskLevel in particular drive expert-count
// selection (spec §4.6) and rule matching (spec §4.6 / Rule strategy).
type Metadata struct {
	Complexity      float64         `json:"complexity"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	Environment     Environment     `json:"environment"`
	DataSensitivity string          `json:"data_sensitivity,omitempty"`
	SystemImpact    string          `json:"system_impact,omitempty"`
	Requester       RequesterRole   `json:"requester"`
}

// RequesterRole identifies who issued the Request and in what capacity.
type RequesterRole struct {
	ID   string `json:"id,omitempty"`
	Role Role   `json:"role"`
}

// DefaultMetadata returns the documented defaults for a Request's metadata
// (spec §4.1: "all metadata fields have documented defaults").
func DefaultMetadata() Metadata {
	return Metadata{
		Complexity:  0.5,
		RiskLevel:   RiskMedium,
		Environment: EnvDev,
		Requester:   RequesterRole{Role: RoleUser},
	}
}

// Request is the immutable unit of work the Orchestrator processes.
// Once constructed it is never mutated; every downstream component reads
// it by value or by pointer-to-const-in-practice.
type Request struct {
	ID       string                 `json:"id"`
	Kind     Kind                   `json:"kind"`
	Payload  interface{}            `json:"payload"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Metadata Metadata               `json:"metadata"`
	Priority Priority               `json:"priority"`
	Deadline *time.Time             `json:"deadline,omitempty"`
}

// DeadlineOrDefault returns the Request's deadline, or now+fallback when
// the caller didn't set one.
func (r Request) DeadlineOrDefault(fallback time.Duration) time.Time {
	if r.Deadline != nil {
		return *r.Deadline
	}
	return time.Now().Add(fallback)
}

// CapabilityNeeds extracts the capability → weight map the registry's
// dot-product match (spec §4.2) scores against. Kind and declared
// DataSensitivity/SystemImpact translate into capability weights so that,
// e.g., a deployment request against prod naturally favors experts whose
// capability vector is strong in "deployment" and "risk-assessment".
func (r Request) CapabilityNeeds() map[string]float64 {
	needs := map[string]float64{
		string(r.Kind): 1.0,
	}
	switch r.Metadata.RiskLevel {
	case RiskHigh, RiskCritical:
		needs["risk-assessment"] = 0.8
	}
	if r.Metadata.SystemImpact == "high" {
		needs["deployment"] = 0.6
	}
	if r.Metadata.DataSensitivity != "" && r.Metadata.DataSensitivity != "none" {
		needs["data-sensitivity"] = 0.7
	}
	return needs
}
