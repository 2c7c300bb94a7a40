package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	requests        *prom.CounterVec
	requestDuration *prom.HistogramVec
	mutations       *prom.CounterVec
	entityCounts    *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.requests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "travels",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "status"})
		pr.requestDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "travels",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method",
			Buckets:   prom.DefBuckets,
		}, []string{"method"})
		pr.mutations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "travels",
			Name:      "mutations_total",
			Help:      "Applied entity mutations by entity and action",
		}, []string{"entity", "action"})
		pr.entityCounts = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "travels",
			Name:      "entities",
			Help:      "Current number of stored entities by kind",
		}, []string{"entity"})
		reg.MustRegister(pr.requests, pr.requestDuration, pr.mutations, pr.entityCounts)
	})
	return pr
}

func (p *PrometheusRecorder) IncHTTPRequest(method string, status int) {
	if p == nil || p.requests == nil {
		return
	}
	p.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) ObserveRequestDuration(method string, d time.Duration) {
	if p == nil || p.requestDuration == nil {
		return
	}
	p.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncMutation(entity string, action string) {
	if p == nil || p.mutations == nil {
		return
	}
	p.mutations.WithLabelValues(entity, action).Inc()
}

func (p *PrometheusRecorder) SetEntityCount(entity string, n int) {
	if p == nil || p.entityCounts == nil {
		return
	}
	p.entityCounts.WithLabelValues(entity).Set(float64(n))
}
