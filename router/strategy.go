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

// candidate is one strategy's vote: an outcome and how confident the
// strategy is in it.
type candidate struct {
	outcome    types.Outcome
	confidence float64
}

// Strategy produces a candidate decision for a request. The router
// combines every registered strategy's candidate into one
// RoutingDecision.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, req types.Request) candidate
}

// outcomeOrder is the total order ties break against (spec §4.6
// Determinism: "lexicographic over outcome names").
var outcomeOrder = []types.Outcome{
	types.OutcomeAuto,
	types.OutcomeConditional,
	types.OutcomeExpert,
	types.OutcomeHuman,
}

func outcomeRank(o types.Outcome) int {
	for i, candidate := range outcomeOrder {
		if candidate == o {
			return i
		}
	}
	return len(outcomeOrder)
}
