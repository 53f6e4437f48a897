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
	"fmt"

	"github.com/taskmesh/expertrouter/shared/types"
)

// templateKey mirrors spec §4.6's "a template keyed by (kind,
// risk_level)".
type templateKey struct {
	kind types.Kind
	risk types.RiskLevel
}

// defaultTemplates is the built-in set of human-prompt templates. An
// unmatched (kind, risk_level) pair falls back to a generic template in
// humanPromptTemplate.
var defaultTemplates = map[templateKey]string{
	{kind: types.KindDeployment, risk: types.RiskCritical}:  "A critical-risk deployment to %s is pending: %v. Approve?",
	{kind: types.KindDeployment, risk: types.RiskHigh}:      "A high-risk deployment to %s is pending: %v. Approve?",
	{kind: types.KindMaintenance, risk: types.RiskCritical}: "A critical-risk maintenance action in %s is pending: %v. Approve?",
}

// humanPromptTemplate picks the template for req and binds its payload
// and environment into it (spec §4.6: "binds the request's payload
// into it").
func humanPromptTemplate(req types.Request) string {
	key := templateKey{kind: req.Kind, risk: req.Metadata.RiskLevel}
	tmpl, ok := defaultTemplates[key]
	if !ok {
		return fmt.Sprintf("Request %s (%s, risk=%s) requires human review: %v", req.ID, req.Kind, req.Metadata.RiskLevel, req.Payload)
	}
	return fmt.Sprintf(tmpl, req.Metadata.Environment, req.Payload)
}
