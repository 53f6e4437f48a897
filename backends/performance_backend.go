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
	"time"

	"context"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskmesh/expertrouter/shared/types"
)

const metricFamilyName = "expertrouter_expert_latency_seconds"

// PerformanceBackend serves the "performance" base expert type (spec
// §3) by answering questions about other experts' observed latency. It
// does not call out to any downstream system: it answers queries
// straight from its own Prometheus histogram — the same counters a
// scrape would see at /metrics. The histogram holds only what callers
// record through Observe; the orchestrator does not call Observe.
type PerformanceBackend struct {
	latency *prometheus.HistogramVec
	gather  prometheus.Gatherer
}

// NewPerformanceBackend registers its histogram on registry so it is
// also exported on the process's normal /metrics endpoint.
func NewPerformanceBackend(registry *prometheus.Registry) *PerformanceBackend {
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricFamilyName,
		Help:    "Observed latency of expert invocations, by expert type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"expert_type"})
	registry.MustRegister(latency)
	return &PerformanceBackend{latency: latency, gather: registry}
}

// Observe records one expert invocation's latency under its type.
func (b *PerformanceBackend) Observe(expertType types.ExpertType, d time.Duration) {
	b.latency.WithLabelValues(string(expertType)).Observe(d.Seconds())
}

func (b *PerformanceBackend) Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error) {
	start := time.Now()

	queryType, _ := payloadMap(req)["expert_type"].(string)
	if queryType == "" {
		return types.ExpertRecommendation{}, types.NewError(types.ErrInvalidRequest, req.ID, "performance expert requires an \"expert_type\" payload field", nil)
	}

	families, err := b.gather.Gather()
	if err != nil {
		return types.ExpertRecommendation{}, types.NewError(types.ErrTransientBackend, req.ID, "failed to gather performance metrics", err)
	}

	count, sumSeconds, found := findHistogramStats(families, queryType)
	if !found {
		return types.ExpertRecommendation{
			Output:     map[string]interface{}{"expert_type": queryType, "sample_count": 0},
			Confidence: 0.2, // no data yet; still a valid (if unhelpful) answer
			LatencyMs:  time.Since(start).Milliseconds(),
		}, nil
	}

	avgMs := (sumSeconds / float64(count)) * 1000
	return types.ExpertRecommendation{
		Output: map[string]interface{}{
			"expert_type":    queryType,
			"sample_count":   count,
			"avg_latency_ms": avgMs,
		},
		Confidence: confidenceFromSampleSize(count),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func findHistogramStats(families []*dto.MetricFamily, expertType string) (count uint64, sumSeconds float64, found bool) {
	for _, family := range families {
		if family.GetName() != metricFamilyName {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "expert_type" && label.GetValue() == expertType {
					h := metric.GetHistogram()
					return h.GetSampleCount(), h.GetSampleSum(), true
				}
			}
		}
	}
	return 0, 0, false
}

func confidenceFromSampleSize(count uint64) float64 {
	switch {
	case count >= 100:
		return 0.95
	case count >= 10:
		return 0.75
	default:
		return 0.5
	}
}
