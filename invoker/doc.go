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
Package invoker runs a set of Experts against a Request concurrently,
under a bounded worker pool and two layered timeouts: a per-expert
timeout that downgrades a slow expert to an error recommendation rather
than failing the whole request, and an aggregate budget timeout that
cancels whatever is still outstanding once it fires.

Invoker never returns an error of its own: every failure mode (timeout,
backend error, cancellation) surfaces as an ExpertRecommendation with a
non-empty Error field, so the aggregator can treat success and failure
uniformly.
*/
package invoker
