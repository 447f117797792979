package modbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request results as reported in the result label.
const (
	resultSuccess    = "success"
	resultTimeout    = "timeout"
	resultConnection = "connection_error"
	resultException  = "exception"
	resultError      = "error"
)

// Metrics collects request and connection telemetry of a Serializer. A nil
// *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	state    prometheus.Gauge
	connects *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickplc_requests_total",
				Help: "Modbus requests sent to the PLC by operation and result.",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clickplc_request_duration_seconds",
				Help:    "Modbus request latency by operation.",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
		state: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clickplc_connection_state",
				Help: "Connection state: 0 disconnected, 1 connecting, 2 connected.",
			},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickplc_connects_total",
				Help: "Connection attempts by result.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.requests,
		m.duration,
		m.state,
		m.connects,
	)

	return m
}

func (m *Metrics) observeRequest(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, result(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) observeConnect(err error) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func result(err error) string {
	switch err.(type) {
	case nil:
		return resultSuccess
	case *TimeoutError:
		return resultTimeout
	case *ConnectionError:
		return resultConnection
	}
	if isException(err) {
		return resultException
	}
	return resultError
}
