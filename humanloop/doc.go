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
Package humanloop bridges the orchestrator to an external, session-based
human interaction service (spec §4.5).

Adapter.Ask constructs an InteractionSession, creates it against the
external service with retrying, idempotent delivery, and then polls
until the session reaches a terminal state: answered, timed out, or
cancelled. A Session's lifecycle is monotonically terminal — once
answered/timeout/cancelled, it never changes again — mirroring the
approval-request lifecycle the teacher's HITL bridge models for policy
escalation.
*/
package humanloop
