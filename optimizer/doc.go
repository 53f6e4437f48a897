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
Package optimizer closes the feedback loop the router's learned
strategy needs (spec §4.7).

Every completed request's RoutingObservation is appended to a durable,
append-only log via ObservationStore and fed to router.HistoryStrategy
for immediate nearest-neighbour use. On a schedule — a fixed interval
or an accumulated observation count, whichever comes first — Optimizer
retrains a fresh Scorer from the log and, only if it clears a holdout
regression check against the currently deployed model, swaps it into
router.LearnedStrategy atomically. A model that would regress is
rejected and logged; the previous model keeps serving.
*/
package optimizer
