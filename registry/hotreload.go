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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskmesh/expertrouter/shared/types"
)

// DefaultWatchInterval is how often WatchConfigFile polls the config
// file's mtime for changes.
const DefaultWatchInterval = 5 * time.Second

// FileConfig is the on-disk shape of a hot-reloadable registry config:
// agent capability vectors and the routing threshold, applied atomically
// through the same single-writer path every other mutation uses (spec
// §4.2, "Hot-reloadable registry ... atomic configs/agents/routing
// swap").
type FileConfig struct {
	Version string                 `yaml:"version"`
	Routing RoutingFileConfig      `yaml:"routing"`
	Agents  map[string]AgentConfig `yaml:"agents"`
}

// RoutingFileConfig holds the routing-level settings a config file may
// override.
type RoutingFileConfig struct {
	Theta float64 `yaml:"theta"`
}

// AgentConfig describes one agent entry in a config file: either an
// override of an existing base/dynamic expert's capability vector, or a
// brand-new statically-declared expert.
type AgentConfig struct {
	Type             string             `yaml:"type"`
	CapabilityVector map[string]float64 `yaml:"capability_vector"`
}

// LoadConfigFile reads a YAML config file and atomically swaps its
// agents and routing threshold into the live registry. Unknown agent
// names are added as new experts; known names have their capability
// vector replaced in place. A zero or absent Routing.Theta leaves the
// current threshold untouched.
func (r *Registry) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read config file %s: %w", path, err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("registry: parse config file %s: %w", path, err)
	}

	if file.Routing.Theta > 0 {
		r.setTheta(file.Routing.Theta)
	}

	r.apply(func(current map[string]types.Expert) (map[string]types.Expert, interface{}) {
		next := cloneExperts(current)
		now := time.Now()
		for name, agent := range file.Agents {
			expertType := types.ExpertType(agent.Type)
			existing, ok := next[name]
			if !ok {
				if expertType == "" {
					expertType = types.ExpertType(name)
				}
				next[name] = types.Expert{
					ID:               name,
					Type:             expertType,
					CapabilityVector: agent.CapabilityVector,
					Status:           types.StatusIdle,
					CreatedAt:        now,
					LastUsedAt:       now,
				}
				continue
			}
			if expertType != "" {
				existing.Type = expertType
			}
			existing.CapabilityVector = agent.CapabilityVector
			next[name] = existing
		}
		return next, nil
	})

	r.log.Info("", "", "registry: applied config file", map[string]interface{}{
		"path": path, "agents": len(file.Agents), "theta": file.Routing.Theta,
	})
	return nil
}

// WatchConfigFile polls path for mtime changes every interval (or
// DefaultWatchInterval) and calls LoadConfigFile whenever it changes,
// until ctx is cancelled. A failed reload is logged and does not stop
// the watch loop — the registry keeps serving its last-good config.
func (r *Registry) WatchConfigFile(ctx context.Context, path string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastMod time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				if err := r.LoadConfigFile(path); err != nil {
					r.log.Error("", "", "registry: config file reload failed", map[string]interface{}{"path": path, "error": err.Error()})
				}
			}
		}
	}()
}
