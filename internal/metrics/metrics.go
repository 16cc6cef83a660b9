// Package metrics exposes relay counters and registry gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/dkeye/cbradio/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cbradio"

// StatsSource is read on every scrape.
type StatsSource interface {
	Stats() domain.Stats
}

// ConnCounter reports live connections.
type ConnCounter interface {
	Count() int
}

type Metrics struct {
	reg *prometheus.Registry

	FramesIn  *prometheus.CounterVec
	Malformed prometheus.Counter
	Relayed   prometheus.Counter
	Rejected  *prometheus.CounterVec
	Evictions prometheus.Counter
}

func New(stats StatsSource, conns ConnCounter) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames decoded, by event type.",
		}, []string{"type"}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Inbound frames dropped because they did not decode.",
		}),
		Relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signaling frames handed to peers.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Channel requests refused, by error code.",
		}, []string{"code"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_evictions_total",
			Help:      "Connections terminated by the liveness sweep.",
		}),
	}

	m.reg.MustRegister(
		m.FramesIn, m.Malformed, m.Relayed, m.Rejected, m.Evictions,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels currently open.",
		}, func() float64 { return float64(stats.Stats().Channels) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "private_channels",
			Help:      "Password-protected channels currently open.",
		}, func() float64 { return float64(stats.Stats().PrivateChannels) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_members",
			Help:      "Members across all channels.",
		}, func() float64 { return float64(stats.Stats().TotalUsers) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live signaling connections.",
		}, func() float64 { return float64(conns.Count()) }),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
