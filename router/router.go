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

	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultMaxExperts bounds the expert-count selection formula (spec
// §4.6: "k = min(max_experts, 1 + ceil(complexity * 4))").
const DefaultMaxExperts = 5

// Weights is the per-strategy vote weight the hybrid combiner applies.
// The defaults match spec §4.6 exactly and must sum to 1.
type Weights struct {
	Rule    float64
	History float64
	Role    float64
	Learned float64
}

// DefaultWeights is spec §4.6's documented default.
var DefaultWeights = Weights{Rule: 0.3, History: 0.2, Role: 0.2, Learned: 0.3}

// Registry is the subset of registry.Registry the router needs to size
// and rank expert candidates for EXPERT_CONSULTATION decisions.
type Registry interface {
	BestScore(needs map[string]float64) float64
}

// Router combines the Rule, History, Role, and Learned strategies into
// one RoutingDecision per request (spec §4.6). The combination itself
// is what the specification calls the "Hybrid" strategy.
type Router struct {
	rule       *RuleStrategy
	history    *HistoryStrategy
	role       *RoleStrategy
	learned    *LearnedStrategy
	weights    Weights
	maxExperts int
	reg        Registry
}

// New constructs a Router wired to reg for expert-count sizing. Pass
// nil history/rule state to start from the documented defaults.
func New(reg Registry, opts ...Option) *Router {
	r := &Router{
		rule:       NewRuleStrategy(DefaultRules()),
		history:    NewHistoryStrategy(0, 0),
		role:       NewRoleStrategy(),
		learned:    NewLearnedStrategy(),
		weights:    DefaultWeights,
		maxExperts: DefaultMaxExperts,
		reg:        reg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithRules overrides the rule strategy's rule set.
func WithRules(rules []Rule) Option {
	return func(r *Router) { r.rule = NewRuleStrategy(rules) }
}

// WithWeights overrides DefaultWeights.
func WithWeights(w Weights) Option {
	return func(r *Router) { r.weights = w }
}

// WithMaxExperts overrides DefaultMaxExperts.
func WithMaxExperts(n int) Option {
	return func(r *Router) { r.maxExperts = n }
}

// History exposes the router's HistoryStrategy so the orchestrator can
// feed it completed RoutingObservations as they land (spec §4.7).
func (r *Router) History() *HistoryStrategy { return r.history }

// Learned exposes the router's LearnedStrategy so the optimizer can
// atomically swap in a freshly trained Scorer.
func (r *Router) Learned() *LearnedStrategy { return r.learned }

// Decide produces a RoutingDecision for req (spec §4.6 Decision
// procedure): each strategy casts a weighted vote, the outcome with
// the highest weighted score wins, decision confidence is the margin
// over the runner-up, and fallback_outcome is the runner-up itself.
func (r *Router) Decide(ctx context.Context, req types.Request) types.RoutingDecision {
	votes := map[types.Outcome]float64{}

	accumulate := func(c candidate, weight float64) {
		votes[c.outcome] += weight * c.confidence
	}

	accumulate(r.rule.Evaluate(ctx, req), r.weights.Rule)
	accumulate(r.history.Evaluate(ctx, req), r.weights.History)
	accumulate(r.role.Evaluate(ctx, req), r.weights.Role)
	accumulate(r.learned.Evaluate(ctx, req), r.weights.Learned)

	winner, winnerScore, runnerUp, runnerScore := rankVotes(votes)

	decision := types.RoutingDecision{
		RequestID:       req.ID,
		Outcome:         winner,
		Confidence:      clamp01(winnerScore - runnerScore),
		Rationale:       "hybrid vote across rule/history/role/learned strategies",
		FallbackOutcome: runnerUp,
	}

	switch winner {
	case types.OutcomeExpert:
		decision.SelectedExperts = nil // populated by the orchestrator via registry.Find, count below
	case types.OutcomeHuman, types.OutcomeConditional:
		decision.HumanPromptTemplate = humanPromptTemplate(req)
		if winner == types.OutcomeConditional {
			decision.ConditionPredicate = "system_impact == \"high\""
		}
	}

	return decision
}

// ExpertCount returns k = min(max_experts, 1 + ceil(complexity * 4))
// (spec §4.6 Expert selection).
func (r *Router) ExpertCount(req types.Request) int {
	k := 1 + int(math.Ceil(req.Metadata.Complexity*4))
	if k > r.maxExperts {
		k = r.maxExperts
	}
	if k < 1 {
		k = 1
	}
	return k
}

// rankVotes returns the winning and runner-up outcomes and their
// weighted scores, breaking ties via outcomeRank (spec §4.6
// Determinism).
func rankVotes(votes map[types.Outcome]float64) (winner types.Outcome, winnerScore float64, runnerUp types.Outcome, runnerScore float64) {
	type entry struct {
		outcome types.Outcome
		score   float64
	}
	entries := make([]entry, 0, len(outcomeOrder))
	for _, o := range outcomeOrder {
		entries = append(entries, entry{outcome: o, score: votes[o]})
	}

	winner, runnerUp = types.OutcomeAuto, types.OutcomeAuto
	winnerScore, runnerScore = -1, -1
	for _, e := range entries {
		switch {
		case e.score > winnerScore:
			runnerUp, runnerScore = winner, winnerScore
			winner, winnerScore = e.outcome, e.score
		case e.score > runnerScore:
			runnerUp, runnerScore = e.outcome, e.score
		}
	}
	return winner, winnerScore, runnerUp, runnerScore
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
