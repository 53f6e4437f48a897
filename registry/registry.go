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
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/taskmesh/expertrouter/shared/logger"
	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultTheta is the minimum capability-score a request must find in an
// existing expert before the registry synthesises a dynamic one (spec
// §4.2).
const DefaultTheta = 0.6

// snapshot is an immutable view of the expert population. Readers take
// a pointer to one and never see a half-written map; the writer
// goroutine builds a new snapshot and publishes it atomically.
type snapshot struct {
	experts map[string]types.Expert
}

// cmdFunc mutates a copy of the current expert map and returns the
// result the caller is waiting on. It runs only on the writer
// goroutine, so it never needs its own locking.
type cmdFunc func(current map[string]types.Expert) (next map[string]types.Expert, result interface{})

type cmdRequest struct {
	fn    cmdFunc
	reply chan interface{}
}

// Registry is the Expert Registry (spec §4.2). Mutations are funnelled
// through a single writer goroutine (spec §5: "single-writer discipline
// ... reads are lock-free snapshots"); Find, Get, and List read an
// atomically-published snapshot without touching the writer at all.
type Registry struct {
	log       *logger.Logger
	thetaBits atomic.Uint64

	snap atomic.Pointer[snapshot]
	cmds chan cmdRequest
	done chan struct{}

	store Store
	cache SnapshotCache
}

// theta returns the current dynamic-synthesis threshold. Stored as
// atomic bits rather than a plain float64 so a hot-reloaded config file
// (LoadConfigFile) can update it without readers in FindOrSynthesize
// ever observing a torn value.
func (r *Registry) theta() float64 {
	return math.Float64frombits(r.thetaBits.Load())
}

func (r *Registry) setTheta(v float64) {
	r.thetaBits.Store(math.Float64bits(v))
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithTheta overrides DefaultTheta.
func WithTheta(theta float64) Option {
	return func(r *Registry) { r.setTheta(theta) }
}

// WithStore attaches a persistence backend. LoadSeed is called once
// during NewRegistry to recover prior state; every subsequent mutation
// is replayed to the store best-effort.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithSnapshotCache attaches a read-through cache that other process
// instances can consult instead of hitting the Store.
func WithSnapshotCache(c SnapshotCache) Option {
	return func(r *Registry) { r.cache = c }
}

// NewRegistry constructs a Registry with the seven base expert types
// guaranteed present (spec §3: "The 7 base types MUST be present at
// startup").
func NewRegistry(ctx context.Context, opts ...Option) (*Registry, error) {
	r := &Registry{
		log:  logger.New("registry"),
		cmds: make(chan cmdRequest),
		done: make(chan struct{}),
	}
	r.setTheta(DefaultTheta)
	for _, opt := range opts {
		opt(r)
	}

	experts := baseExperts(time.Now())
	if r.store != nil {
		seeded, err := r.store.LoadAll(ctx)
		if err != nil {
			r.log.Error("", "", "registry: failed to load persisted experts, starting from base set only", map[string]interface{}{"error": err.Error()})
		} else {
			for _, e := range seeded {
				experts[e.ID] = e
			}
		}
	}
	r.publish(experts)

	go r.run()
	return r, nil
}

// baseExperts returns the seven mandatory base experts with neutral
// capability vectors and idle status.
func baseExperts(now time.Time) map[string]types.Expert {
	experts := make(map[string]types.Expert, len(types.BaseExpertTypes))
	for _, t := range types.BaseExpertTypes {
		experts[string(t)] = types.Expert{
			ID:               string(t),
			Type:             t,
			CapabilityVector: neutralCapabilityVector(t),
			Status:           types.StatusIdle,
			Stats:            types.PerformanceStats{},
			CreatedAt:        now,
			LastUsedAt:       now,
		}
	}
	return experts
}

// neutralCapabilityVector gives every base expert a strong score for its
// own type plus a modest cross-cutting baseline so find() degrades
// gracefully when nothing scores highly.
func neutralCapabilityVector(t types.ExpertType) map[string]float64 {
	v := map[string]float64{string(t): 1.0}
	switch t {
	case types.ExpertSecurity:
		v["risk-assessment"] = 0.9
		v["data-sensitivity"] = 0.8
	case types.ExpertPerformance:
		v["system-impact"] = 0.7
	case types.ExpertData:
		v["data-sensitivity"] = 0.6
	case types.ExpertTechnical:
		v["deployment"] = 0.5
	}
	return v
}

func (r *Registry) run() {
	current := r.snap.Load().experts
	for req := range r.cmds {
		next, result := req.fn(current)
		current = next
		r.publish(current)
		req.reply <- result
	}
}

func (r *Registry) publish(experts map[string]types.Expert) {
	r.snap.Store(&snapshot{experts: experts})
	if r.cache != nil {
		go r.cache.Publish(context.Background(), experts)
	}
}

// apply serialises fn through the single writer goroutine and returns
// its result. Blocking and cheap: fn only ever touches a plain map.
func (r *Registry) apply(fn cmdFunc) interface{} {
	reply := make(chan interface{}, 1)
	select {
	case r.cmds <- cmdRequest{fn: fn, reply: reply}:
	case <-r.done:
		return nil
	}
	return <-reply
}

// Close stops the writer goroutine. Safe to call once.
func (r *Registry) Close() {
	close(r.done)
	close(r.cmds)
}

// Find returns up to k experts ranked by capability-vector dot product
// against needs, filtered to status=idle (spec §4.2). It never errors
// on an empty result; the only failure is a corrupted snapshot, which
// is promoted to RegistryUnavailable.
func (r *Registry) Find(needs map[string]float64, k int) ([]types.Expert, error) {
	snap := r.snap.Load()
	if snap == nil {
		return nil, types.NewError(types.ErrInternalInvariant, "", "registry snapshot is nil: RegistryUnavailable", nil)
	}
	if k <= 0 {
		return []types.Expert{}, nil
	}

	candidates := make([]types.Expert, 0, len(snap.experts))
	for _, e := range snap.experts {
		if e.Eligible() {
			candidates = append(candidates, e)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		si := candidates[i].CapabilityScore(needs)
		sj := candidates[j].CapabilityScore(needs)
		if si != sj {
			return si > sj
		}
		return candidates[i].ID < candidates[j].ID // deterministic tie-break
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return append([]types.Expert(nil), candidates[:k]...), nil
}

// BestScore returns the highest capability score among eligible
// experts for needs, used by the dynamic-creation threshold check.
func (r *Registry) BestScore(needs map[string]float64) float64 {
	snap := r.snap.Load()
	if snap == nil {
		return 0
	}
	best := 0.0
	for _, e := range snap.experts {
		if !e.Eligible() {
			continue
		}
		if s := e.CapabilityScore(needs); s > best {
			best = s
		}
	}
	return best
}

// Get returns a single expert snapshot by id.
func (r *Registry) Get(id string) (types.Expert, bool) {
	snap := r.snap.Load()
	if snap == nil {
		return types.Expert{}, false
	}
	e, ok := snap.experts[id]
	return e, ok
}

// List returns every expert currently in the registry, sorted by id.
func (r *Registry) List() []types.Expert {
	snap := r.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]types.Expert, 0, len(snap.experts))
	for _, e := range snap.experts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkBusy transitions an expert to busy immediately before invocation
// (spec §4.3: "mark expert busy before invocation").
func (r *Registry) MarkBusy(id string) {
	r.apply(func(current map[string]types.Expert) (map[string]types.Expert, interface{}) {
		e, ok := current[id]
		if !ok {
			return current, nil
		}
		next := cloneExperts(current)
		e.Status = types.StatusBusy
		e.LastUsedAt = time.Now()
		next[id] = e
		return next, nil
	})
}

// RecordOutcome restores the expert to idle (or degrades it after
// DegradeThreshold consecutive failures) and folds latency/confidence
// into its rolling PerformanceStats (spec §4.3, §4.2 Performance
// stats).
func (r *Registry) RecordOutcome(id string, success bool, latencyMs int64, confidence float64, cooldown time.Duration) {
	r.apply(func(current map[string]types.Expert) (map[string]types.Expert, interface{}) {
		e, ok := current[id]
		if !ok {
			return current, nil
		}
		next := cloneExperts(current)
		e.Stats = updateStats(e.Stats, success, latencyMs, confidence)

		if success {
			e.Status = types.StatusIdle
		} else if e.Stats.ConsecFailures >= DegradeThreshold {
			until := time.Now().Add(cooldown)
			e.Status = types.StatusDegraded
			e.DegradedUntil = &until
		} else {
			e.Status = types.StatusIdle
		}
		next[id] = e
		if r.store != nil {
			go r.store.Upsert(context.Background(), e)
		}
		return next, nil
	})
}

// DegradeThreshold is the number of consecutive invocation failures
// that demotes an expert to degraded (spec §4.3).
const DegradeThreshold = 3

func updateStats(s types.PerformanceStats, success bool, latencyMs int64, confidence float64) types.PerformanceStats {
	s.Calls++
	if success {
		s.Successes++
		s.ConsecFailures = 0
	} else {
		s.ConsecFailures++
	}
	s.AvgLatencyMs = runningAverage(s.AvgLatencyMs, float64(latencyMs), s.Calls)
	s.AvgConfidence = runningAverage(s.AvgConfidence, confidence, s.Calls)
	return s
}

func runningAverage(prevAvg, sample float64, n int64) float64 {
	if n <= 1 {
		return sample
	}
	return prevAvg + (sample-prevAvg)/float64(n)
}

// ReviveExpired scans for degraded experts whose cool-down has elapsed
// and restores them to idle. Intended to be driven by the same ticker
// that runs the pruner.
func (r *Registry) ReviveExpired(now time.Time) {
	r.apply(func(current map[string]types.Expert) (map[string]types.Expert, interface{}) {
		var changed bool
		next := current
		for id, e := range current {
			if e.Status == types.StatusDegraded && e.DegradedUntil != nil && !now.Before(*e.DegradedUntil) {
				if !changed {
					next = cloneExperts(current)
					changed = true
				}
				e.Status = types.StatusIdle
				e.DegradedUntil = nil
				next[id] = e
			}
		}
		return next, nil
	})
}

func cloneExperts(m map[string]types.Expert) map[string]types.Expert {
	next := make(map[string]types.Expert, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}
