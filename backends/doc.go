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

/*
Package backends provides the invoker.Backend implementation behind
each of the seven base expert types (spec §3), plus a catch-all
backend for dynamically synthesized experts.

Every Backend here is a thin adapter: it turns a types.Request into the
call its underlying transport understands (an LLM invocation, an HTTP
request, a SQL/NoSQL query, a PII scan, a metrics query) and turns the
transport's response into a types.ExpertRecommendation. None of them
retry, time out, or track expert health themselves — invoker already
owns all of that; a Backend's only job is the one round trip it was
asked to make.
*/
package backends

import "github.com/taskmesh/expertrouter/shared/types"

// payloadMap extracts a Request's Payload as a string-keyed map, the
// shape every backend here expects its callers to send. Payload is
// declared interface{} (spec §4.1: arbitrary caller-defined body), so a
// payload that isn't a JSON object surfaces as an empty map rather than
// a panic.
func payloadMap(req types.Request) map[string]interface{} {
	m, _ := req.Payload.(map[string]interface{})
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
