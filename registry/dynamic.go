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

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

// ScenarioSignature computes the deterministic hash over kind, key
// metadata fields, and extracted domain tags that the registry uses to
// decide whether an existing expert already covers a request, or a new
// dynamic one must be synthesised (spec §4.2).
func ScenarioSignature(req types.Request) string {
	tags := domainTags(req)
	sort.Strings(tags)

	h := sha256.New()
	fmt.Fprintf(h, "kind=%s|risk=%s|env=%s|sensitivity=%s|impact=%s|tags=%s",
		req.Kind, req.Metadata.RiskLevel, req.Metadata.Environment,
		req.Metadata.DataSensitivity, req.Metadata.SystemImpact, strings.Join(tags, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// domainTags extracts the free-form context keys a request carries,
// which is the part of the signature that varies with scenario rather
// than with the Request's typed fields.
func domainTags(req types.Request) []string {
	tags := make([]string, 0, len(req.Context))
	for k := range req.Context {
		tags = append(tags, k)
	}
	return tags
}

// FindOrSynthesize implements the full dynamic-expert-creation
// contract of spec §4.2: it finds up to k eligible experts scoring
// above theta, and if none does, synthesises exactly one new dynamic
// expert keyed by the request's scenario signature, returning it
// alongside whatever base experts separately exceed theta.
//
// Two concurrent callers with the same scenario signature are
// guaranteed to observe the same dyn:<signature> expert afterward
// (spec invariant 5), because synthesis is funnelled through the
// single writer goroutine and keyed by id.
func (r *Registry) FindOrSynthesize(req types.Request, k int) ([]types.Expert, error) {
	needs := req.CapabilityNeeds()
	ranked, err := r.Find(needs, k)
	if err != nil {
		return nil, err
	}

	theta := r.theta()
	aboveTheta := make([]types.Expert, 0, len(ranked))
	for _, e := range ranked {
		if e.CapabilityScore(needs) >= theta {
			aboveTheta = append(aboveTheta, e)
		}
	}
	if len(aboveTheta) > 0 {
		return aboveTheta, nil
	}

	signature := ScenarioSignature(req)
	dynID := "dyn:" + signature

	result := r.apply(func(current map[string]types.Expert) (map[string]types.Expert, interface{}) {
		if existing, ok := current[dynID]; ok {
			return current, existing
		}
		next := cloneExperts(current)
		now := time.Now()
		e := types.Expert{
			ID:                dynID,
			Type:              types.ExpertType(signature),
			CapabilityVector:  derivedCapabilityVector(req, needs),
			Status:            types.StatusIdle,
			Stats:             types.PerformanceStats{},
			CreatedAt:         now,
			LastUsedAt:        now,
			ScenarioSignature: signature,
		}
		next[dynID] = e
		return next, e
	})

	created, ok := result.(types.Expert)
	if !ok {
		return nil, types.NewError(types.ErrInternalInvariant, req.ID, "dynamic expert synthesis produced no result: RegistryUnavailable", nil)
	}
	if r.store != nil {
		go r.store.Upsert(context.Background(), created)
	}

	// Re-rank with the freshly synthesised expert included, capped at k.
	ranked, err = r.Find(needs, k)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		ranked = []types.Expert{created}
	}
	return ranked, nil
}

// derivedCapabilityVector seeds a new dynamic expert's vector from the
// request's own capability needs, biased slightly above what triggered
// its creation so it clears theta the next time the same scenario
// recurs.
func derivedCapabilityVector(req types.Request, needs map[string]float64) map[string]float64 {
	v := make(map[string]float64, len(needs)+1)
	for capability, weight := range needs {
		score := weight
		if score > 1 {
			score = 1
		}
		v[capability] = score
	}
	v[string(req.Kind)] = 1.0
	return v
}
