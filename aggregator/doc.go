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
Package aggregator folds zero or more ExpertRecommendations and an
optional human response into a single AggregatedResult.

Recommendations below the confidence floor or carrying an error are
dropped first. What survives is merged field-by-field, weighted by each
expert's rolling success rate times its own confidence; a human
response, when present, carries a fixed priority weight and overrides
whatever fields it explicitly addresses. The result always carries a
dissent score — the normalized variance of contributing confidences —
so the orchestrator can decide whether to escalate to a human even when
Merge itself didn't need one.

Merge never errors: with nothing left to aggregate, it falls back to a
low-confidence result carrying the router's own rationale, exactly the
way the teacher's result synthesis falls back to simple concatenation
when LLM-backed synthesis fails.
*/
package aggregator
