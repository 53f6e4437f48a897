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
Package types holds the data model shared across the router, registry,
invoker, aggregator, human-loop adapter, optimizer, and orchestrator
packages: a single source of truth so those packages can pass requests,
decisions, and results between each other without import cycles.

# Overview

A Request arrives at the Orchestrator and is immutable from that point on.
The Router turns it into a RoutingDecision. Depending on the decision's
outcome, the Invoker produces ExpertRecommendations and/or the human-loop
Adapter produces an InteractionSession response. The Aggregator folds
whatever came back into a single AggregatedResult. The Optimizer records
a RoutingObservation once the result is known.
*/
package types
