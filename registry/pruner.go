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
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultPruneInterval is how often the pruner sweeps for inactive
// dynamic experts.
const DefaultPruneInterval = 10 * time.Minute

// DefaultRetentionWindow is the inactivity window after which a dynamic
// expert with zero calls is pruned (spec §4.2 Pruner, §3 Lifecycles).
const DefaultRetentionWindow = time.Hour

// callCounter snapshots a dynamic expert's call count at the start of a
// retention window, so the pruner can tell "zero calls ever" apart from
// "zero calls in the last window".
type callCounter struct {
	calls int64
	since time.Time
}

// Pruner periodically removes dynamic experts that accrued zero calls
// over the retention window. Base experts are never candidates (spec
// §4.2: "Base experts are never pruned").
type Pruner struct {
	reg        *Registry
	interval   time.Duration
	retention  time.Duration
	baseline   map[string]callCounter
}

// NewPruner constructs a Pruner for reg. interval and retention fall
// back to DefaultPruneInterval/DefaultRetentionWindow when zero.
func NewPruner(reg *Registry, interval, retention time.Duration) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	return &Pruner{reg: reg, interval: interval, retention: retention, baseline: make(map[string]callCounter)}
}

// Run blocks, sweeping on Pruner's interval until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.reg.ReviveExpired(now)
			p.sweep(now)
		}
	}
}

func (p *Pruner) sweep(now time.Time) {
	for _, e := range p.reg.List() {
		if !e.IsDynamic() {
			continue
		}
		base, tracked := p.baseline[e.ID]
		if !tracked {
			p.baseline[e.ID] = callCounter{calls: e.Stats.Calls, since: now}
			continue
		}
		if now.Sub(base.since) < p.retention {
			continue
		}
		if e.Stats.Calls == base.calls {
			p.reg.remove(e.ID)
			delete(p.baseline, e.ID)
			continue
		}
		p.baseline[e.ID] = callCounter{calls: e.Stats.Calls, since: now}
	}
}

// remove deletes an expert from the registry through the single-writer
// path.
func (r *Registry) remove(id string) {
	r.apply(func(current map[string]types.Expert) (map[string]types.Expert, interface{}) {
		if _, ok := current[id]; !ok {
			return current, nil
		}
		next := cloneExperts(current)
		delete(next, id)
		return next, nil
	})
	if r.store != nil {
		go r.store.Delete(context.Background(), id)
	}
}
