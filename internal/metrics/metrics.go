// Package metrics exposes per-host packet counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
)

// Outcome labels of netlayer_packets_total.
const (
	OutcomeDelivered = "delivered"
	OutcomeForwarded = "forwarded"
	OutcomeNoRoute   = "no_route"
	OutcomeLinkError = "link_error"
	OutcomeMalformed = "malformed"
)

// Metrics holds the collectors of one host on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Packets       *prometheus.CounterVec
	BytesReceived prometheus.Counter
	BytesSent     prometheus.Counter
	Links         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlayer_packets_total",
			Help: "Packets handled by the network layer, by outcome.",
		}, []string{"outcome"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlayer_bytes_received_total",
			Help: "Bytes read from data links.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlayer_bytes_sent_total",
			Help: "Bytes written to data links.",
		}),
		Links: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netlayer_links",
			Help: "Data links currently registered.",
		}),
	}
	m.Registry.MustRegister(m.Packets, m.BytesReceived, m.BytesSent, m.Links)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Observe counts one dispatch result.
func (m *Metrics) Observe(o network.Outcome, err error) {
	m.Packets.WithLabelValues(PacketOutcome(o, err)).Inc()
}

// PacketOutcome maps a dispatch result to its outcome label.
func PacketOutcome(o network.Outcome, err error) string {
	switch {
	case errors.Is(err, network.ErrNoRoute):
		return OutcomeNoRoute
	case errors.Is(err, protocol.ErrShortHeader), errors.Is(err, protocol.ErrMalformedHeader):
		return OutcomeMalformed
	case err != nil:
		return OutcomeLinkError
	case o == network.Forwarded:
		return OutcomeForwarded
	default:
		return OutcomeDelivered
	}
}
