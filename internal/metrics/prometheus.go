package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pomamo"

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	rangeQuery   *prom.HistogramVec
	mergedSlots  *prom.CounterVec
	extendFaults *prom.CounterVec
	resolves     *prom.CounterVec
	resolveTime  prom.Histogram
	cache        *prom.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		rangeQuery: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "range_query_duration_seconds",
			Help:      "Duration of slot range queries by view variant",
			Buckets:   prom.DefBuckets,
		}, []string{"variant"}),
		mergedSlots: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "merged_slots_total",
			Help:      "View slots returned by range queries",
		}, []string{"variant"}),
		extendFaults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "extend_faults_total",
			Help:      "Zero-width neighbor slots met while extending",
		}, []string{"direction"}),
		resolves: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Current state resolutions by origin tier",
		}, []string{"origin"}),
		resolveTime: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of current state resolutions",
			Buckets:   prom.DefBuckets,
		}),
		cache: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Resolver cache lookups by result",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.rangeQuery, pr.mergedSlots, pr.extendFaults, pr.resolves, pr.resolveTime, pr.cache)
	return pr
}

func (p *PrometheusRecorder) ObserveRangeQuery(variant string, d time.Duration) {
	p.rangeQuery.WithLabelValues(variant).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddMergedSlots(variant string, n int) {
	p.mergedSlots.WithLabelValues(variant).Add(float64(n))
}

func (p *PrometheusRecorder) IncExtendFault(direction string) {
	p.extendFaults.WithLabelValues(direction).Inc()
}

func (p *PrometheusRecorder) IncResolve(origin string) {
	p.resolves.WithLabelValues(origin).Inc()
}

func (p *PrometheusRecorder) ObserveResolve(d time.Duration) {
	p.resolveTime.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCacheRequest(hit bool) {
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cache.WithLabelValues(res).Inc()
}

// HTTPHandler serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
