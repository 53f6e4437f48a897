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
Package registry is the Expert Registry: the source of truth for the
population of Experts the router and invoker draw on.

The seven base expert types are guaranteed to exist from the moment
NewRegistry returns. Everything else — dynamic scenario experts,
performance-stat updates, status transitions — flows through a single
writer goroutine so that concurrent requests never race on the
underlying maps; readers (Find, Get, List) take a lock-free snapshot of
a copy-on-write pointer instead of contending with the writer.

An optional Store persists the registry's state to Postgres so it
survives a restart, and an optional SnapshotCache publishes read
snapshots to Redis so other process instances can serve Find without a
round trip to Postgres.
*/
package registry
