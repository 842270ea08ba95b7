package apiclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts API calls and session renewals. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	forcedLogouts prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "townspark",
			Subsystem: "apiclient",
			Name:      "requests_total",
			Help:      "API calls by method and final status code (0 when no response was received).",
		}, []string{"method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "townspark",
			Subsystem: "apiclient",
			Name:      "token_refreshes_total",
			Help:      "Refresh calls issued to the token endpoint by outcome.",
		}, []string{"outcome"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "townspark",
			Subsystem: "apiclient",
			Name:      "forced_logouts_total",
			Help:      "Sessions cleared because the refresh token was rejected.",
		}),
	}
	reg.MustRegister(m.requests, m.refreshes, m.forcedLogouts)
	return m
}

func (m *Metrics) request(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) forcedLogout() {
	if m == nil {
		return
	}
	m.forcedLogouts.Inc()
}
