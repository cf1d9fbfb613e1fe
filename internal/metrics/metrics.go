// Package metrics exposes Prometheus counters for the API client.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "festmatch_client"

// Refresh outcomes
const (
	RefreshSuccess      = "success"
	RefreshUnauthorized = "unauthorized"
	RefreshMissingToken = "missing_token"
	RefreshTimeout      = "timeout"
	RefreshError        = "error"
)

type Metrics struct {
	RefreshTotal  *prometheus.CounterVec
	Replays       prometheus.Counter
	SessionClears *prometheus.CounterVec
	Requests      *prometheus.CounterVec
}

// New creates the counters and registers them when reg is non-nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Access token refresh calls by outcome.",
		}, []string{"outcome"}),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Requests re-sent after a refresh triggered by 401.",
		}),
		SessionClears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_clears_total",
			Help:      "Sessions torn down by the client, by reason.",
		}, []string{"reason"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Responses received by status code.",
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(m.RefreshTotal, m.Replays, m.SessionClears, m.Requests)
	}
	return m
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Replay() {
	if m == nil {
		return
	}
	m.Replays.Inc()
}

func (m *Metrics) SessionCleared(reason string) {
	if m == nil {
		return
	}
	m.SessionClears.WithLabelValues(reason).Inc()
}

func (m *Metrics) Response(status int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
}
