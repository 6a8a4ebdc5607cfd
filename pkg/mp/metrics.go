package mp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values
const (
	failureLocal = "local"
	failurePeer  = "peer_unreachable"

	dropProtocol  = "protocol"
	dropUnmatched = "unmatched_reply"
	dropNoAction  = "no_action"

	resultOK          = "ok"
	resultIgnored     = "ignored"
	resultUnreachable = "unreachable"
	resultTimeout     = "timeout"
	resultError       = "error"
)

// Metrics holds the Prometheus collectors of one channel
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	SendFailures     *prometheus.CounterVec
	Requests         *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	PendingRequests  prometheus.Gauge
	HandlerErrors    prometheus.Counter
}

// NewMetrics creates the channel collectors and registers them with reg.
// A nil reg leaves them unregistered; see Register.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mp_messages_sent_total",
				Help: "Total number of datagrams sent, by message kind",
			},
			[]string{"kind"},
		),
		MessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mp_messages_received_total",
				Help: "Total number of well-formed datagrams received, by message kind",
			},
			[]string{"kind"},
		),
		MessagesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mp_messages_dropped_total",
				Help: "Total number of received messages dropped without dispatch",
			},
			[]string{"reason"},
		),
		SendFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mp_send_failures_total",
				Help: "Total number of failed sends, by failure class",
			},
			[]string{"class"},
		),
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mp_requests_total",
				Help: "Total number of per-peer synchronous requests, by outcome",
			},
			[]string{"result"},
		),
		RequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mp_request_duration_seconds",
				Help:    "Duration of Request calls in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		PendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mp_pending_requests",
				Help: "Number of requests waiting for a reply",
			},
		),
		HandlerErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mp_handler_errors_total",
				Help: "Total number of action handler failures",
			},
		),
	}
}

// Register adds every collector to reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesSent,
		m.MessagesReceived,
		m.MessagesDropped,
		m.SendFailures,
		m.Requests,
		m.RequestDuration,
		m.PendingRequests,
		m.HandlerErrors,
	}
}
