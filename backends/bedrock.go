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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/taskmesh/expertrouter/connectors/config"
	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultBedrockMaxTokens bounds the response size requested from the
// model per invocation.
const DefaultBedrockMaxTokens = 1024

// BedrockTargetDegradeThreshold is the number of consecutive
// invocation failures that takes a model target out of rotation,
// mirroring registry.DegradeThreshold for the same reason: a handful
// of blips shouldn't trip it, a sustained run should.
const BedrockTargetDegradeThreshold = 3

// BedrockTargetCooldown is how long a degraded target is skipped
// before it is retried.
const BedrockTargetCooldown = 30 * time.Second

// bedrockTarget is one registered Bedrock model id with its routing
// weight and health state (spec §C.4: "multiple Bedrock model ids can
// be registered with independent health/weight"). Health is tracked
// with plain atomics rather than a mutex since selectTarget runs on
// every Invoke call and must not block concurrent invocations of each
// other.
type bedrockTarget struct {
	modelID        string
	priority       int
	weight         float64
	consecFailures atomic.Int32
	degradedUntil  atomic.Int64 // unix nanoseconds; 0 means healthy
}

func (t *bedrockTarget) healthy(now time.Time) bool {
	until := t.degradedUntil.Load()
	return until == 0 || now.UnixNano() >= until
}

func (t *bedrockTarget) recordSuccess() {
	t.consecFailures.Store(0)
	t.degradedUntil.Store(0)
}

func (t *bedrockTarget) recordFailure(now time.Time) {
	if t.consecFailures.Add(1) >= BedrockTargetDegradeThreshold {
		t.degradedUntil.Store(now.Add(BedrockTargetCooldown).UnixNano())
	}
}

// BedrockBackend serves the "technical" base expert type (spec §3) by
// invoking an Anthropic-family model on AWS Bedrock with AWS Signature
// V4 authentication via IAM roles. It supports routing across several
// registered model ids, picking among the healthy ones at the best
// priority tier by weight (spec §C.4).
type BedrockBackend struct {
	client  *bedrockruntime.Client
	targets []*bedrockTarget
	next    atomic.Uint64
}

// NewBedrockBackend wraps client with a single default model id, used
// for every call unless the request's context overrides it via the
// "bedrock_model" key.
func NewBedrockBackend(client *bedrockruntime.Client, modelID string) *BedrockBackend {
	return &BedrockBackend{
		client:  client,
		targets: []*bedrockTarget{{modelID: modelID, priority: 1, weight: 1.0}},
	}
}

// NewBedrockBackendFromProviders builds a BedrockBackend with one
// target per enabled LLM provider config (spec §C.4). Each provider's
// "model_id" config key supplies the Bedrock model id; Priority and
// Weight drive selection. Providers missing a model_id are skipped.
// If none remain, fallbackModelID seeds a single default target so the
// backend always has somewhere to route.
func NewBedrockBackendFromProviders(client *bedrockruntime.Client, providers []*config.LLMProviderConfig, fallbackModelID string) *BedrockBackend {
	targets := make([]*bedrockTarget, 0, len(providers))
	for _, p := range providers {
		if p == nil || !p.Enabled {
			continue
		}
		modelID, _ := p.Config["model_id"].(string)
		if modelID == "" {
			continue
		}
		priority := p.Priority
		if priority <= 0 {
			priority = 5
		}
		weight := p.Weight
		if weight <= 0 {
			weight = 1.0
		}
		targets = append(targets, &bedrockTarget{modelID: modelID, priority: priority, weight: weight})
	}
	if len(targets) == 0 {
		targets = append(targets, &bedrockTarget{modelID: fallbackModelID, priority: 1, weight: 1.0})
	}
	return &BedrockBackend{client: client, targets: targets}
}

// selectTarget picks the target to invoke: the healthy targets at the
// lowest (best) priority number, chosen among them proportionally to
// weight via a deterministic weighted round robin. If every target is
// degraded, it falls back to the full set rather than failing outright
// — a temporary cooldown on every model shouldn't stop traffic.
func (b *BedrockBackend) selectTarget(now time.Time) *bedrockTarget {
	pool := b.targets
	healthy := make([]*bedrockTarget, 0, len(pool))
	for _, t := range pool {
		if t.healthy(now) {
			healthy = append(healthy, t)
		}
	}
	if len(healthy) == 0 {
		healthy = pool
	}

	best := healthy[0].priority
	for _, t := range healthy[1:] {
		if t.priority < best {
			best = t.priority
		}
	}
	candidates := make([]*bedrockTarget, 0, len(healthy))
	var totalWeight float64
	for _, t := range healthy {
		if t.priority == best {
			candidates = append(candidates, t)
			totalWeight += t.weight
		}
	}
	if len(candidates) == 1 || totalWeight <= 0 {
		return candidates[0]
	}

	// Scale weights into integer units, reduced by their greatest common
	// divisor, so the running counter can pick a slot with plain modulo
	// arithmetic and consecutive calls cycle through every candidate.
	const scale = 1000
	shares := make([]uint64, len(candidates))
	var g, units uint64
	for i, t := range candidates {
		shares[i] = uint64(t.weight * scale)
		for s := shares[i]; s != 0; {
			g, s = s, g%s
		}
	}
	if g == 0 {
		return candidates[0]
	}
	for _, s := range shares {
		units += s / g
	}
	pick := b.next.Add(1) % units

	var cursor uint64
	for i, t := range candidates {
		cursor += shares[i] / g
		if pick < cursor {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

func (b *BedrockBackend) Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	now := time.Now()
	target := b.selectTarget(now)
	model := target.modelID
	if override, ok := req.Context["bedrock_model"].(string); ok && override != "" {
		model = override
		target = nil
	}

	prompt := buildTechnicalPrompt(req)
	body, err := json.Marshal(map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":         DefaultBedrockMaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return types.ExpertRecommendation{}, fmt.Errorf("backends: marshal bedrock request: %w", err)
	}

	start := time.Now()
	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		if target != nil {
			target.recordFailure(now)
		}
		return types.ExpertRecommendation{}, classifyBedrockError(err)
	}
	if target != nil {
		target.recordSuccess()
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(output.Body, &parsed); err != nil {
		return types.ExpertRecommendation{}, fmt.Errorf("backends: parse bedrock response: %w", err)
	}

	text := ""
	if len(parsed.Content) > 0 {
		text = parsed.Content[0].Text
	}

	return types.ExpertRecommendation{
		Output: map[string]interface{}{
			"text":          text,
			"stop_reason":   parsed.StopReason,
			"input_tokens":  parsed.Usage.InputTokens,
			"output_tokens": parsed.Usage.OutputTokens,
			"model_id":      model,
		},
		Confidence: confidenceFromStopReason(parsed.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func buildTechnicalPrompt(req types.Request) string {
	return fmt.Sprintf("Request kind: %s\nPriority: %s\nPayload: %v\n\nAnalyze this request and provide a technical recommendation.",
		req.Kind, req.Priority, req.Payload)
}

// confidenceFromStopReason maps Bedrock's stop_reason to a confidence
// signal: a model that stopped because it was satisfied with its
// answer ("end_turn") is more trustworthy than one truncated by its
// own token budget.
func confidenceFromStopReason(reason string) float64 {
	switch reason {
	case "end_turn", "stop_sequence":
		return 0.85
	case "max_tokens":
		return 0.5
	default:
		return 0.6
	}
}

// classifyBedrockError tags throttling/connection-class failures as
// transient so the invoker's one-retry policy applies; anything else
// is treated as a logical failure the expert itself produced.
func classifyBedrockError(err error) error {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "InternalServerException",
			"ModelNotReadyException", "ModelTimeoutException":
		default:
			return fmt.Errorf("backends: bedrock invocation failed: %w", err)
		}
	}
	return types.NewError(types.ErrTransientBackend, "", "bedrock invocation failed", err)
}
