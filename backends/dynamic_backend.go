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

package backends

import (
	"context"

	"github.com/taskmesh/expertrouter/shared/types"
)

// DynamicBackend serves experts the registry synthesized on the fly
// (spec §4.2): their Type is a scenario signature, not one of the seven
// base types, so no dedicated transport was ever configured for them.
// It delegates to whichever base backend the request's own Kind would
// have routed to, falling back to fallback when Kind names nothing this
// process has a backend for — registered under invoker.DynamicBackendType.
type DynamicBackend struct {
	byKind   map[types.Kind]invokerBackend
	fallback invokerBackend
}

// invokerBackend mirrors invoker.Backend structurally so this package
// need not import invoker. It is an alias, so callers may pass a map
// whose element type is the equivalent interface literal.
type invokerBackend = interface {
	Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error)
}

// NewDynamicBackend wires byKind (a request kind's natural base
// backend) and fallback (used when the kind isn't in byKind).
func NewDynamicBackend(byKind map[types.Kind]invokerBackend, fallback invokerBackend) *DynamicBackend {
	return &DynamicBackend{byKind: byKind, fallback: fallback}
}

func (b *DynamicBackend) Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	if backend, ok := b.byKind[req.Kind]; ok {
		return backend.Invoke(ctx, expert, req)
	}
	return b.fallback.Invoke(ctx, expert, req)
}
