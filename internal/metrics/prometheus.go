package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/rpc"
	"time"
)

const namespace = "trusted_ops"

// PrometheusObserver counts worker statuses and request outcomes.
type PrometheusObserver struct {
	statuses *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var _ rpc.StatusObserver = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers its collectors with reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		statuses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_total",
				Help:      "Statuses reported by the worker.",
			},
			[]string{"method", "status"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Finished requests by outcome.",
			},
			[]string{"method", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from dial until the request settled.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 6, 12, 30, 60},
			},
			[]string{"method"},
		),
	}
}

func (o *PrometheusObserver) ObserveStatus(method rpc.Method, status codec.DirectRequestStatus) {
	o.statuses.WithLabelValues(method.String(), statusLabel(status)).Inc()
}

func (o *PrometheusObserver) ObserveResult(method rpc.Method, elapsed time.Duration, err error) {
	o.requests.WithLabelValues(method.String(), outcomeLabel(err)).Inc()
	o.latency.WithLabelValues(method.String()).Observe(elapsed.Seconds())
}
