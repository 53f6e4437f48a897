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

	"github.com/taskmesh/expertrouter/shared/types"
)

// Rule is one declarative predicate-outcome pair, generalized from the
// teacher's PolicyCondition/PolicyAction split into a single evaluable
// unit. Rules are ordered; the first whose Predicate matches wins
// within the RuleStrategy (spec §4.6: "Rules are ordered; first match
// wins within the strategy").
type Rule struct {
	Name       string
	Predicate  func(types.Request) bool
	Outcome    types.Outcome
	Confidence float64
}

// RuleStrategy evaluates an ordered list of declarative Rules.
type RuleStrategy struct {
	rules []Rule
}

// NewRuleStrategy constructs a RuleStrategy over rules, in priority
// order (first wins).
func NewRuleStrategy(rules []Rule) *RuleStrategy {
	return &RuleStrategy{rules: rules}
}

// DefaultRules returns the baseline rule set: production deployments
// with high system impact require a human, and critical-risk requests
// from non-admin requesters always get expert consultation at minimum.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "prod-high-impact-requires-human",
			Predicate: func(r types.Request) bool {
				return r.Metadata.Environment == types.EnvProd && r.Metadata.SystemImpact == "high"
			},
			Outcome:    types.OutcomeHuman,
			Confidence: 0.95,
		},
		{
			Name: "critical-risk-requires-expert",
			Predicate: func(r types.Request) bool {
				return r.Metadata.RiskLevel == types.RiskCritical
			},
			Outcome:    types.OutcomeExpert,
			Confidence: 0.8,
		},
		{
			Name: "low-complexity-maintenance-is-auto",
			Predicate: func(r types.Request) bool {
				return r.Kind == types.KindMaintenance && r.Metadata.Complexity < 0.3
			},
			Outcome:    types.OutcomeAuto,
			Confidence: 0.7,
		},
	}
}

func (s *RuleStrategy) Name() string { return "rule" }

func (s *RuleStrategy) Evaluate(_ context.Context, req types.Request) candidate {
	for _, rule := range s.rules {
		if rule.Predicate(req) {
			return candidate{outcome: rule.Outcome, confidence: rule.Confidence}
		}
	}
	return candidate{outcome: types.OutcomeAuto, confidence: 0.1}
}
