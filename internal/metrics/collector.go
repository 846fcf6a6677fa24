package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spounge-ai/polypay/pkg/apiclient"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/patterns/circuitbreaker"
)

const namespace = "polypay"

// Collector records client requests in Prometheus. It implements
// apiclient.Observer.
type Collector struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	breakerState prometheus.Gauge
}

var _ apiclient.Observer = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "client_requests_total",
				Help:      "Platform requests by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "client_request_duration_seconds",
				Help:      "Platform request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_circuit_breaker_state",
			Help:      "0 closed, 1 open, 2 half open",
		}),
	}
}

func (c *Collector) ObserveRequest(info apiclient.RequestInfo) {
	outcome := "ok"
	if info.Err != nil {
		outcome = apierrors.KindOf(info.Err).String()
	}
	c.requests.WithLabelValues(info.Op, outcome).Inc()
	c.duration.WithLabelValues(info.Op).Observe(info.Duration.Seconds())
}

// BreakerStateChanged fits circuitbreaker.Settings.OnStateChange.
func (c *Collector) BreakerStateChanged(_, to circuitbreaker.State) {
	c.breakerState.Set(float64(to))
}
