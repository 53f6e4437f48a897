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

// Outcome is one of the four decisions the router can reach for a
// Request (spec §3).
type Outcome string

const (
	OutcomeAuto        Outcome = "AUTO"
	OutcomeHuman       Outcome = "HUMAN_REQUIRED"
	OutcomeExpert      Outcome = "EXPERT_CONSULTATION"
	OutcomeConditional Outcome = "CONDITIONAL"
)

// RoutingDecision is the router's verdict for one Request.
type RoutingDecision struct {
	RequestID           string   `json:"request_id"`
	Outcome             Outcome  `json:"outcome"`
	Confidence          float64  `json:"confidence"`
	Rationale           string   `json:"rationale"`
	SelectedExperts     []string `json:"selected_experts,omitempty"`
	HumanPromptTemplate string   `json:"human_prompt_template,omitempty"`
	FallbackOutcome     Outcome  `json:"fallback_outcome,omitempty"`

	// ConditionPredicate, present only when Outcome is CONDITIONAL, names
	// which branch the orchestrator should re-evaluate the decision as
	// once the predicate is checked against live state.
	ConditionPredicate string `json:"condition_predicate,omitempty"`
}

// AggregatedResult is the single outcome the Orchestrator returns for a
// Request — either this, or an error; never both, never partial (spec
// §4.1 Contract).
type AggregatedResult struct {
	RequestID           string      `json:"request_id"`
	Recommendation      interface{} `json:"recommendation"`
	Confidence          float64     `json:"confidence"`
	ContributingExperts []string    `json:"contributing_experts"`
	DissentScore        float64     `json:"dissent_score"`
	HumanInput          interface{} `json:"human_input,omitempty"`
}

// SessionKind is the shape of interaction the human-loop adapter asks for.
type SessionKind string

const (
	SessionConfirmation SessionKind = "confirmation"
	SessionSelection    SessionKind = "selection"
	SessionInput        SessionKind = "input"
	SessionUpload       SessionKind = "upload"
)

// DefaultTimeout returns the spec-mandated default session timeout for a
// SessionKind (spec §4.5 step 1).
func (k SessionKind) DefaultTimeout() time.Duration {
	switch k {
	case SessionConfirmation:
		return 120 * time.Second
	case SessionSelection:
		return 300 * time.Second
	case SessionInput:
		return 600 * time.Second
	case SessionUpload:
		return 900 * time.Second
	default:
		return 300 * time.Second
	}
}

// SessionStatus is the terminal-or-not state of an InteractionSession
// (spec §3: "monotonically terminal").
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionAnswered  SessionStatus = "answered"
	SessionTimeout   SessionStatus = "timeout"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further mutation of the session is
// permitted.
func (s SessionStatus) Terminal() bool {
	return s == SessionAnswered || s == SessionTimeout || s == SessionCancelled
}

// InteractionSession is a correlated request/response exchange with the
// external human-interaction service.
type InteractionSession struct {
	SessionID string                 `json:"session_id"`
	RequestID string                 `json:"request_id"`
	Kind      SessionKind            `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Options   []string               `json:"options,omitempty"`
	Fields    map[string]string      `json:"fields,omitempty"`
	Status    SessionStatus          `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	Response  map[string]interface{} `json:"response,omitempty"`
}

// RoutingObservation is the optimizer's unit of training data: one
// completed request's features, the decision taken, and the reward it
// earned in hindsight (spec §4.7).
type RoutingObservation struct {
	RequestID string             `json:"request_id"`
	Features  map[string]float64 `json:"features"`
	Decision  Outcome            `json:"decision"`
	Reward    float64            `json:"reward"`
	Timestamp time.Time          `json:"timestamp"`
}
