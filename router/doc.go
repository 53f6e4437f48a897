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
Package router emits a RoutingDecision for every Request.

Four independent strategies — Rule, History, Role, and Learned — each
produce a candidate outcome with a confidence. Router.Decide takes a
weighted vote across them (the fifth, "Hybrid", strategy the
specification names is this combination step itself, not a fifth
independent voter) and resolves ties with a documented total order so
that, given identical inputs and unchanged strategy state, the same
decision always comes out.
*/
package router
