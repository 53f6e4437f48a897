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

// RoleStrategy prefers HUMAN_REQUIRED for destructive actions taken by
// non-admin requesters (spec §4.6).
type RoleStrategy struct{}

func NewRoleStrategy() *RoleStrategy { return &RoleStrategy{} }

func (s *RoleStrategy) Name() string { return "role" }

func (s *RoleStrategy) Evaluate(_ context.Context, req types.Request) candidate {
	if req.Metadata.Requester.Role == types.RoleAdmin {
		return candidate{outcome: types.OutcomeAuto, confidence: 0.4}
	}

	destructive := req.Kind == types.KindDeployment || req.Kind == types.KindMaintenance
	highRisk := req.Metadata.RiskLevel == types.RiskHigh || req.Metadata.RiskLevel == types.RiskCritical

	if destructive && highRisk {
		return candidate{outcome: types.OutcomeHuman, confidence: 0.85}
	}
	if destructive {
		return candidate{outcome: types.OutcomeExpert, confidence: 0.5}
	}
	return candidate{outcome: types.OutcomeAuto, confidence: 0.3}
}
