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

package backends

import (
	"fmt"
	"time"

	"context"

	"github.com/taskmesh/expertrouter/shared/types"
)

// SecurityBackend serves the "security" base expert type (spec §3) by
// scanning every string-valued field of the request's payload for
// regulated data categories and recommending redaction wherever the
// highest-severity match warrants it.
type SecurityBackend struct {
	scanner *Scanner
}

// NewSecurityBackend builds a SecurityBackend, requiring matches at or
// above minConfidence to be reported.
func NewSecurityBackend(minConfidence float64) *SecurityBackend {
	return &SecurityBackend{scanner: NewScanner(minConfidence)}
}

func (b *SecurityBackend) Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	start := time.Now()

	var matches []SensitiveMatch
	for field, value := range payloadMap(req) {
		text, ok := value.(string)
		if !ok {
			continue
		}
		for _, m := range b.scanner.Scan(text) {
			m.Value = fmt.Sprintf("%s.%s", field, redact(m.Value))
			matches = append(matches, m)
		}
	}

	highest := SeverityLow
	kinds := make([]string, 0, len(matches))
	for _, m := range matches {
		kinds = append(kinds, string(m.Kind))
		if severityRank(m.Severity) > severityRank(highest) {
			highest = m.Severity
		}
	}

	recommendAction := "allow"
	if len(matches) > 0 {
		recommendAction = "redact"
	}
	if highest == SeverityCritical {
		recommendAction = "block"
	}

	return types.ExpertRecommendation{
		Output: map[string]interface{}{
			"action":           recommendAction,
			"findings":         kinds,
			"match_count":      len(matches),
			"highest_severity": string(highest),
		},
		Confidence: confidenceFromFindings(matches),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// redact masks all but the value's first and last visible character so
// the recommendation's rationale stays inspectable without repeating the
// sensitive data it flagged.
func redact(value string) string {
	if len(value) <= 2 {
		return "**"
	}
	return value[:1] + "***" + value[len(value)-1:]
}

func severityRank(s SensitiveSeverity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

func confidenceFromFindings(matches []SensitiveMatch) float64 {
	if len(matches) == 0 {
		return 0.9 // confident nothing sensitive was present
	}
	best := 0.0
	for _, m := range matches {
		if m.Confidence > best {
			best = m.Confidence
		}
	}
	return best
}
