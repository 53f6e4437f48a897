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

package optimizer

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

// Defaults from spec §4.7.
const (
	DefaultRetrainInterval  = time.Hour
	DefaultRetrainThreshold = 500 // observation count that forces an early retrain
	DefaultSubmitQueueSize  = 1000
	DefaultHoldoutFraction  = 0.2
	DefaultRegressionFloor  = -0.01 // candidate must not score more than this much worse than current
)

// HistoryRecorder is the subset of router.HistoryStrategy the optimizer
// feeds immediately, independent of the slower retrain cycle.
type HistoryRecorder interface {
	Record(obs types.RoutingObservation)
}

// Config tunes Optimizer behavior; zero values fall back to spec
// defaults.
type Config struct {
	RetrainInterval  time.Duration
	RetrainThreshold int
	SubmitQueueSize  int
	HoldoutFraction  float64
	RegressionFloor  float64
}

func (c Config) withDefaults() Config {
	if c.RetrainInterval <= 0 {
		c.RetrainInterval = DefaultRetrainInterval
	}
	if c.RetrainThreshold <= 0 {
		c.RetrainThreshold = DefaultRetrainThreshold
	}
	if c.SubmitQueueSize <= 0 {
		c.SubmitQueueSize = DefaultSubmitQueueSize
	}
	if c.HoldoutFraction <= 0 {
		c.HoldoutFraction = DefaultHoldoutFraction
	}
	if c.RegressionFloor == 0 {
		c.RegressionFloor = DefaultRegressionFloor
	}
	return c
}

// Optimizer implements spec §4.7's incremental retraining loop.
type Optimizer struct {
	store      ObservationStore
	history    HistoryRecorder
	learned    *LearnedAdapter
	modelStore ModelStore // optional
	cfg        Config
	logger     *log.Logger

	submit       chan types.RoutingObservation
	sinceLast    int
	currentModel *CentroidScorer
}

// LearnedAdapter narrows router.LearnedStrategy's Swap(Scorer) method
// (Scorer being an interface defined in the router package) down to the
// concrete CentroidScorer this package trains, without optimizer
// importing router (which would create an import cycle, since the
// orchestrator wires router → optimizer → router.LearnedStrategy).
// Callers pass router.LearnedStrategy itself via NewLearnedAdapter,
// which satisfies this closure-based shape.
type LearnedAdapter struct {
	swap func(model *CentroidScorer)
}

// NewLearnedAdapter wraps a swap function — typically
// `router.LearnedStrategy.Swap` adapted as
// `func(m *optimizer.CentroidScorer) { strategy.Swap(m) }` — so Optimizer
// never needs to import the router package directly.
func NewLearnedAdapter(swap func(model *CentroidScorer)) *LearnedAdapter {
	return &LearnedAdapter{swap: swap}
}

// Swap invokes the wrapped closure.
func (a *LearnedAdapter) Swap(model *CentroidScorer) {
	a.swap(model)
}

// New constructs an Optimizer. modelStore may be nil, in which case
// trained models are never persisted across restarts.
func New(store ObservationStore, history HistoryRecorder, learned *LearnedAdapter, modelStore ModelStore, cfg Config) *Optimizer {
	o := &Optimizer{
		store:      store,
		history:    history,
		learned:    learned,
		modelStore: modelStore,
		cfg:        cfg.withDefaults(),
		logger:     log.New(os.Stdout, "[OPTIMIZER] ", log.LstdFlags),
		submit:     make(chan types.RoutingObservation, cfg.withDefaults().SubmitQueueSize),
	}
	return o
}

// Submit fire-and-forget enqueues an observation. If the submission
// buffer is full, the oldest queued observation is dropped to make
// room — submission never blocks the caller (spec §4.7: "fire-and-
// forget submission; a full buffer drops oldest-first").
func (o *Optimizer) Submit(obs types.RoutingObservation) {
	select {
	case o.submit <- obs:
	default:
		select {
		case <-o.submit:
		default:
		}
		select {
		case o.submit <- obs:
		default:
		}
	}
}

// Run drains submitted observations into the durable store and the
// router's history strategy, and retrains on the configured schedule,
// until ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.RetrainInterval)
	defer ticker.Stop()

	if o.modelStore != nil {
		if model, err := o.modelStore.Load(ctx); err != nil {
			o.logger.Printf("load persisted model: %v", err)
		} else if model != nil && o.learned != nil {
			o.learned.swap(model)
			o.logger.Printf("resumed persisted model with %d centroids", len(model.Centroids))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case obs := <-o.submit:
			if err := o.store.Append(ctx, obs); err != nil {
				o.logger.Printf("append observation %s: %v", obs.RequestID, err)
			}
			if o.history != nil {
				o.history.Record(obs)
			}
			o.sinceLast++
			if o.sinceLast >= o.cfg.RetrainThreshold {
				o.retrain(ctx)
				o.sinceLast = 0
			}

		case <-ticker.C:
			o.retrain(ctx)
			o.sinceLast = 0
		}
	}
}

// retrain loads recent observations, trains a candidate model on the
// training split, evaluates it against a holdout split, and swaps it
// in only if it doesn't regress below the current model by more than
// RegressionFloor (spec §4.7: "retrain is rejected if its holdout
// reward regresses past a floor relative to the currently deployed
// model").
func (o *Optimizer) retrain(ctx context.Context) {
	obs, err := o.store.LoadRecent(ctx, DefaultHistoryWindowForTraining)
	if err != nil {
		o.logger.Printf("load observations for retrain: %v", err)
		return
	}
	if len(obs) < 10 {
		return // not enough data to train meaningfully
	}

	splitAt := int(float64(len(obs)) * (1 - o.cfg.HoldoutFraction))
	if splitAt <= 0 || splitAt >= len(obs) {
		splitAt = len(obs) - 1
	}
	train, holdout := obs[:splitAt], obs[splitAt:]

	candidate := trainCentroidScorer(train)
	candidateReward := evaluateReward(candidate, holdout)

	if o.currentModel != nil {
		currentReward := evaluateReward(o.currentModel, holdout)
		if candidateReward < currentReward+o.cfg.RegressionFloor {
			o.logger.Printf("retrain rejected: candidate reward %.4f vs current %.4f", candidateReward, currentReward)
			return
		}
	}

	o.currentModel = candidate
	if o.learned != nil {
		o.learned.swap(candidate)
	}
	if o.modelStore != nil {
		if err := o.modelStore.Save(ctx, candidate); err != nil {
			o.logger.Printf("persist retrained model: %v", err)
		}
	}
	o.logger.Printf("retrained model accepted: holdout reward %.4f over %d observations", candidateReward, len(obs))
}

// DefaultHistoryWindowForTraining caps how many recent observations a
// single retrain pass loads.
const DefaultHistoryWindowForTraining = 5000
