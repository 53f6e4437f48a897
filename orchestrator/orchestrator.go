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

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/taskmesh/expertrouter/aggregator"
	"github.com/taskmesh/expertrouter/shared/logger"
	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultRequestTimeout bounds a Request that carries no Deadline of its
// own (spec §4.1: "every request gets a deadline, declared or derived").
const DefaultRequestTimeout = 45 * time.Second

// Registry is the subset of registry.Registry the orchestrator drives
// directly: FindOrSynthesize resolves the EXPERT_CONSULTATION candidate
// set (spec §4.2), Get backs the aggregator's StatsSource.
type Registry interface {
	FindOrSynthesize(req types.Request, k int) ([]types.Expert, error)
	Get(id string) (types.Expert, bool)
}

// Invoker is the subset of invoker.Invoker the orchestrator calls.
type Invoker interface {
	Invoke(ctx context.Context, experts []types.Expert, req types.Request) []types.ExpertRecommendation
}

// HumanLoop is the subset of humanloop.Adapter the orchestrator calls
// for HUMAN_REQUIRED, CONDITIONAL, and escalated EXPERT_CONSULTATION
// decisions.
type HumanLoop interface {
	Ask(ctx context.Context, kind types.SessionKind, title, message string, options []string, fields map[string]string, req types.Request) (types.InteractionSession, error)
}

// Merger is the subset of aggregator.Aggregator the orchestrator calls
// to fold expert recommendations, and any human input, into a single
// AggregatedResult.
type Merger interface {
	Merge(recs []types.ExpertRecommendation, humanInput interface{}, decision types.RoutingDecision) aggregator.Result
}

// Decider is the subset of router.Router the orchestrator calls.
type Decider interface {
	Decide(ctx context.Context, req types.Request) types.RoutingDecision
	ExpertCount(req types.Request) int
}

// ObservationSink is the subset of optimizer.Optimizer the orchestrator
// feeds completed RoutingObservations into for offline retraining (spec
// §4.7). Submit is fire-and-forget; a nil sink disables recording.
type ObservationSink interface {
	Submit(obs types.RoutingObservation)
}

// Config tunes Orchestrator behavior; a zero Config falls back to
// DefaultRequestTimeout.
type Config struct {
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Orchestrator implements the Process contract of spec §4.1: validate,
// decide, dispatch per outcome, merge, record, return — exactly one
// AggregatedResult or one error, never both, never partial.
type Orchestrator struct {
	registry Registry
	router   Decider
	invoker  Invoker
	merger   Merger
	human    HumanLoop
	obs      ObservationSink
	log      *logger.Logger
	cfg      Config
}

// New wires an Orchestrator. obs may be nil to disable observation
// recording (useful for tests and for deployments that haven't enabled
// the optimizer).
func New(reg Registry, dec Decider, inv Invoker, merger Merger, human HumanLoop, obs ObservationSink, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		router:   dec,
		invoker:  inv,
		merger:   merger,
		human:    human,
		obs:      obs,
		log:      logger.New("orchestrator"),
		cfg:      cfg.withDefaults(),
	}
}

// Process runs one Request through the full routing pipeline (spec
// §4.1: "validate, decide, dispatch per outcome, merge, record, return").
func (o *Orchestrator) Process(ctx context.Context, req types.Request) (types.AggregatedResult, error) {
	if err := validate(req); err != nil {
		return types.AggregatedResult{}, err
	}

	deadline := req.DeadlineOrDefault(o.cfg.RequestTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	decision := o.router.Decide(ctx, req)
	o.auditDecision(req, decision)

	result, err := o.dispatch(ctx, req, decision)
	if err != nil {
		return types.AggregatedResult{}, classifyDispatchError(ctx, req.ID, err)
	}

	o.recordObservation(req, decision, result)
	return result, nil
}

func classifyDispatchError(ctx context.Context, requestID string, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return types.NewError(types.ErrTimeout, requestID, "request exceeded its deadline", err)
	case context.Canceled:
		return types.NewError(types.ErrCancelled, requestID, "request was cancelled", err)
	default:
		return err
	}
}

func validate(req types.Request) error {
	if req.ID == "" {
		return types.NewError(types.ErrInvalidRequest, req.ID, "request id must not be empty", nil)
	}
	if req.Kind == "" {
		return types.NewError(types.ErrInvalidRequest, req.ID, "request kind must not be empty", nil)
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, req types.Request, decision types.RoutingDecision) (types.AggregatedResult, error) {
	switch decision.Outcome {
	case types.OutcomeAuto:
		return o.merger.Merge(nil, nil, decision).AggregatedResult, nil
	case types.OutcomeExpert:
		return o.dispatchExpert(ctx, req, decision)
	case types.OutcomeHuman:
		return o.dispatchHuman(ctx, req, decision)
	case types.OutcomeConditional:
		return o.dispatchConditional(ctx, req, decision)
	default:
		return types.AggregatedResult{}, types.NewError(types.ErrInternalInvariant, req.ID, "router produced an unrecognized outcome: "+string(decision.Outcome), nil)
	}
}

// dispatchExpert implements EXPERT_CONSULTATION (spec §4.2/§4.3/§4.4):
// size and find the candidate set, invoke concurrently, merge, and
// escalate to a human confirmation when the experts disagree too much
// (aggregator.Result.NeedsEscalation).
func (o *Orchestrator) dispatchExpert(ctx context.Context, req types.Request, decision types.RoutingDecision) (types.AggregatedResult, error) {
	k := o.router.ExpertCount(req)
	experts, err := o.registry.FindOrSynthesize(req, k)
	if err != nil {
		return types.AggregatedResult{}, err
	}
	if len(experts) == 0 {
		return types.AggregatedResult{}, types.NewError(types.ErrNoExpertsAvailable, req.ID, "no experts available for this request", nil)
	}
	decision.SelectedExperts = expertIDs(experts)

	recs := o.invoker.Invoke(ctx, experts, req)
	merged := o.merger.Merge(recs, nil, decision)

	if merged.NeedsEscalation {
		session, err := o.human.Ask(ctx, types.SessionConfirmation,
			"Expert recommendations disagree",
			"Experts produced divergent recommendations for this request; please confirm the preferred outcome.",
			nil, nil, req)
		if err != nil {
			o.log.Warn(req.Metadata.Requester.ID, req.ID, "human escalation unavailable, returning unescalated merge", map[string]interface{}{"error": err.Error()})
			return merged.AggregatedResult, nil
		}
		merged = o.merger.Merge(recs, sessionInput(session), decision)
	}
	return merged.AggregatedResult, nil
}

// dispatchHuman implements HUMAN_REQUIRED (spec §4.5): ask, wait, merge
// the human's response alone.
func (o *Orchestrator) dispatchHuman(ctx context.Context, req types.Request, decision types.RoutingDecision) (types.AggregatedResult, error) {
	session, err := o.human.Ask(ctx, types.SessionConfirmation, "Human decision required", decision.HumanPromptTemplate, nil, nil, req)
	if err != nil {
		return types.AggregatedResult{}, wrapHumanLoopError(req.ID, err)
	}
	merged := o.merger.Merge(nil, sessionInput(session), decision)
	return merged.AggregatedResult, nil
}

// wrapHumanLoopError preserves Ask's own error taxonomy (Timeout,
// Cancelled) when it already returned one, and only falls back to the
// generic HumanLoopUnavailable kind for errors Ask didn't classify.
func wrapHumanLoopError(requestID string, err error) error {
	var rErr *types.Error
	if errors.As(err, &rErr) {
		return rErr
	}
	return types.NewError(types.ErrHumanLoopUnavailable, requestID, "human-loop adapter unavailable", err)
}

// dispatchConditional implements CONDITIONAL (spec §4.6): evaluate the
// decision's predicate against live request state and re-route to
// either the human path or the declared fallback outcome.
func (o *Orchestrator) dispatchConditional(ctx context.Context, req types.Request, decision types.RoutingDecision) (types.AggregatedResult, error) {
	if evaluateCondition(decision.ConditionPredicate, req) {
		return o.dispatchHuman(ctx, req, decision)
	}

	fallback := decision
	fallback.Outcome = decision.FallbackOutcome
	if fallback.Outcome == types.OutcomeExpert {
		return o.dispatchExpert(ctx, req, fallback)
	}
	return o.merger.Merge(nil, nil, fallback).AggregatedResult, nil
}

// evaluateCondition checks the one predicate the router ever emits
// (spec §4.6). An unrecognized predicate defaults to false rather than
// panicking, so a future router change degrades to the fallback branch
// instead of crashing the pipeline.
func evaluateCondition(predicate string, req types.Request) bool {
	switch predicate {
	case "system_impact == \"high\"":
		return req.Metadata.SystemImpact == "high"
	default:
		return false
	}
}

// sessionInput turns an answered InteractionSession into the
// interface{} shape aggregator.Merge expects, or nil when the session
// never got a response (timeout, cancellation).
func sessionInput(session types.InteractionSession) interface{} {
	if session.Status != types.SessionAnswered || session.Response == nil {
		return nil
	}
	out := make(map[string]interface{}, len(session.Response))
	for k, v := range session.Response {
		out[k] = v
	}
	return out
}

func expertIDs(experts []types.Expert) []string {
	ids := make([]string, len(experts))
	for i, e := range experts {
		ids[i] = e.ID
	}
	return ids
}

// auditDecision records every routing verdict, win or lose, as a
// structured log line keyed by request id (spec §4.1 observability:
// "every decision is auditable after the fact").
func (o *Orchestrator) auditDecision(req types.Request, decision types.RoutingDecision) {
	o.log.Info(req.Metadata.Requester.ID, req.ID, "routing decision", map[string]interface{}{
		"outcome":          string(decision.Outcome),
		"confidence":       decision.Confidence,
		"rationale":        decision.Rationale,
		"selected_experts": decision.SelectedExperts,
		"fallback_outcome": string(decision.FallbackOutcome),
	})
}

// recordObservation feeds the optimizer one completed routing episode
// (spec §4.7), using the final merged confidence as the reward signal.
func (o *Orchestrator) recordObservation(req types.Request, decision types.RoutingDecision, result types.AggregatedResult) {
	if o.obs == nil {
		return
	}
	o.obs.Submit(types.RoutingObservation{
		RequestID: req.ID,
		Features:  req.CapabilityNeeds(),
		Decision:  decision.Outcome,
		Reward:    result.Confidence,
		Timestamp: time.Now(),
	})
}
