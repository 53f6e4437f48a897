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

package invoker

import (
	"context"
	"sync"
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

// Defaults from spec §4.3.
const (
	DefaultMaxConcurrent = 7
	DefaultExpertTimeout = 30 * time.Second
	DefaultBudgetReserve = 2 * time.Second
	DefaultCooldown      = 300 * time.Second
)

// DynamicBackendType is the sentinel key a caller registers a fallback
// Backend under to serve dynamically synthesized experts, whose Type is
// their scenario signature rather than one of the seven base types
// (spec §4.2) and so will never otherwise match a map entry keyed by
// base type.
const DynamicBackendType types.ExpertType = "__dynamic__"

// Backend is the per-expert-type transport the invoker calls through.
// Each base expert type is backed by a concrete implementation in
// package backends.
type Backend interface {
	Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error)
}

// StatusTracker is the slice of registry.Registry the invoker needs to
// drive the busy/idle/degraded lifecycle (spec §4.3: "mark expert busy
// before invocation, restore to idle afterward; on three consecutive
// failures, transition to degraded").
type StatusTracker interface {
	MarkBusy(id string)
	RecordOutcome(id string, success bool, latencyMs int64, confidence float64, cooldown time.Duration)
}

// Config tunes Invoker behavior; a zero Config is replaced field-by-field
// with the spec §4.3 defaults.
type Config struct {
	MaxConcurrent int
	ExpertTimeout time.Duration
	BudgetReserve time.Duration
	Cooldown      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.ExpertTimeout <= 0 {
		c.ExpertTimeout = DefaultExpertTimeout
	}
	if c.BudgetReserve <= 0 {
		c.BudgetReserve = DefaultBudgetReserve
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// Invoker runs experts against a request concurrently under a bounded
// worker pool (spec §4.3).
type Invoker struct {
	backends map[types.ExpertType]Backend
	tracker  StatusTracker
	cfg      Config
}

// New constructs an Invoker. backends maps each expert type (base or
// dynamic) to the Backend that serves it; a dynamic expert's type is
// its scenario signature, so callers typically register a fallback
// backend under a sentinel key and resolve it in BackendFor.
func New(backends map[types.ExpertType]Backend, tracker StatusTracker, cfg Config) *Invoker {
	return &Invoker{backends: backends, tracker: tracker, cfg: cfg.withDefaults()}
}

// Invoke calls every expert in experts concurrently (up to
// MaxConcurrent in flight, further experts queue FIFO via a semaphore)
// and returns their recommendations in completion order (spec §4.3
// Tie-breaks: "recommendations are returned in completion order, not
// submission order").
func (inv *Invoker) Invoke(ctx context.Context, experts []types.Expert, req types.Request) []types.ExpertRecommendation {
	if len(experts) == 0 {
		return nil
	}

	budgetCtx, cancel := inv.budgetContext(ctx, req)
	defer cancel()

	results := make(chan types.ExpertRecommendation, len(experts))
	sem := make(chan struct{}, inv.cfg.MaxConcurrent)

	var wg sync.WaitGroup
	for _, e := range experts {
		wg.Add(1)
		go func(e types.Expert) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-budgetCtx.Done():
				results <- errorRecommendation(e.ID, "timeout")
				return
			}
			defer func() { <-sem }()
			results <- inv.invokeOne(budgetCtx, e, req)
		}(e)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	recs := make([]types.ExpertRecommendation, 0, len(experts))
	for r := range results {
		recs = append(recs, r)
	}
	return recs
}

// budgetContext derives the aggregate-timeout context (spec §4.3:
// "budget_ms, default request deadline minus a fixed reserve").
func (inv *Invoker) budgetContext(ctx context.Context, req types.Request) (context.Context, context.CancelFunc) {
	deadline := req.DeadlineOrDefault(inv.cfg.ExpertTimeout + inv.cfg.BudgetReserve)
	budgetDeadline := deadline.Add(-inv.cfg.BudgetReserve)
	return context.WithDeadline(ctx, budgetDeadline)
}

// invokeOne runs a single expert under its own per-expert timeout,
// retries once on a transient error, and always folds the outcome back
// into the registry's status lifecycle.
func (inv *Invoker) invokeOne(ctx context.Context, e types.Expert, req types.Request) types.ExpertRecommendation {
	inv.tracker.MarkBusy(e.ID)

	perCtx, cancel := context.WithTimeout(ctx, inv.cfg.ExpertTimeout)
	defer cancel()

	start := time.Now()
	rec, err := inv.callWithRetry(perCtx, e, req)
	latencyMs := time.Since(start).Milliseconds()

	success := err == nil && !rec.Failed()
	inv.tracker.RecordOutcome(e.ID, success, latencyMs, rec.Confidence, inv.cfg.Cooldown)

	if err != nil {
		if perCtx.Err() != nil {
			// Per-expert timeout: do NOT propagate upward (spec §4.3).
			return errorRecommendation(e.ID, "timeout")
		}
		return errorRecommendation(e.ID, err.Error())
	}

	rec.ExpertID = e.ID
	rec.LatencyMs = latencyMs
	return rec
}

// callWithRetry invokes the backend once, retrying exactly once when
// the failure is classified transient (spec §4.3: "one retry on
// transient error (network/IO class); no retry on logical errors
// reported by the expert").
func (inv *Invoker) callWithRetry(ctx context.Context, e types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	backend, ok := inv.backends[e.Type]
	if !ok && e.IsDynamic() {
		backend, ok = inv.backends[DynamicBackendType]
	}
	if !ok {
		return types.ExpertRecommendation{}, types.NewError(types.ErrInternalInvariant, req.ID, "no backend registered for expert type "+string(e.Type), nil)
	}

	rec, err := backend.Invoke(ctx, e, req)
	if err == nil {
		return rec, nil
	}
	if !isRetryable(err) {
		return rec, err
	}
	if ctx.Err() != nil {
		return rec, err
	}
	return backend.Invoke(ctx, e, req)
}

func isRetryable(err error) bool {
	var rErr *types.Error
	for wrapped := err; wrapped != nil; {
		if e, ok := wrapped.(*types.Error); ok {
			rErr = e
			break
		}
		u, ok := wrapped.(interface{ Unwrap() error })
		if !ok {
			break
		}
		wrapped = u.Unwrap()
	}
	return rErr != nil && rErr.Retryable()
}

func errorRecommendation(expertID, message string) types.ExpertRecommendation {
	return types.ExpertRecommendation{ExpertID: expertID, Confidence: 0, Error: message}
}
