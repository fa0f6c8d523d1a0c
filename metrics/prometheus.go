/*
 * Copyright (c) 2024. Shuojiang Liu.
 * Licensed under the MIT License (the "License");
 * you may not use this file except in compliance with the License.
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is the default Collector, registering its vectors on
// construction. Mirrors the pack's dcache MetricSet shape: one
// HistogramVec for latency, CounterVecs for everything else.
type Prometheus struct {
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	cacheHits  *prometheus.CounterVec
	cacheMiss  *prometheus.CounterVec
	hotKeys    *prometheus.CounterVec
}

// NewPrometheus registers its metrics on reg and returns a ready Collector.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvredis_proxy",
			Name:      "command_duration_seconds",
			Help:      "Command handling latency by command name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvredis_proxy",
			Name:      "command_errors_total",
			Help:      "Command errors by command name.",
		}, []string{"command"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvredis_proxy",
			Name:      "cache_hits_total",
			Help:      "Cache hits by tier.",
		}, []string{"tier"}),
		cacheMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvredis_proxy",
			Name:      "cache_misses_total",
			Help:      "Cache misses by tier.",
		}, []string{"tier"}),
		hotKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvredis_proxy",
			Name:      "hot_keys_detected_total",
			Help:      "Hot keys detected by data-type class.",
		}, []string{"class"}),
	}

	reg.MustRegister(p.latency, p.errors, p.cacheHits, p.cacheMiss, p.hotKeys)
	return p
}

func (p *Prometheus) CommandLatency(command string, d time.Duration) {
	p.latency.WithLabelValues(command).Observe(d.Seconds())
}

func (p *Prometheus) CommandError(command string) {
	p.errors.WithLabelValues(command).Inc()
}

func (p *Prometheus) CacheHit(tier string) {
	p.cacheHits.WithLabelValues(tier).Inc()
}

func (p *Prometheus) CacheMiss(tier string) {
	p.cacheMiss.WithLabelValues(tier).Inc()
}

func (p *Prometheus) HotKeyDetected(class string) {
	p.hotKeys.WithLabelValues(class).Inc()
}
