package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver turns tool_invoke events into Prometheus series.
// Other events are ignored.
type PrometheusObserver struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewPrometheusObserver() *PrometheusObserver {
	reg := prometheus.NewRegistry()
	invocations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluma_tool_invocations_total",
			Help: "Tool invocations by resulting action.",
		},
		[]string{"tool", "tool_type", "action"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pluma_tool_duration_seconds",
			Help:    "Duration of tool handler executions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool", "tool_type"},
	)
	reg.MustRegister(invocations, duration)
	return &PrometheusObserver{registry: reg, invocations: invocations, duration: duration}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	if ev.Name != EventToolInvoke {
		return
	}
	tool, typ := ev.Tags["tool"], ev.Tags["tool_type"]
	p.invocations.WithLabelValues(tool, typ, ev.Tags["action"]).Inc()
	p.duration.WithLabelValues(tool, typ).Observe((time.Duration(ev.Value * float64(time.Millisecond))).Seconds())
}

// Handler serves the observer's registry in the exposition format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
