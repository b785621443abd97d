package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "astrohub_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	alpacaCalls   *prometheus.CounterVec
	alpacaLatency *prometheus.HistogramVec
	alpacaErrors  *prometheus.CounterVec

	connectionTransitions *prometheus.CounterVec
	devicesByState        *prometheus.GaugeVec

	discoveryScans   *prometheus.CounterVec
	discoveryLatency prometheus.Histogram
	serversKnown     prometheus.Gauge

	eventsPublished *prometheus.CounterVec
)

// Init registers the hub's Prometheus metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		alpacaCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alpaca_calls_total",
				Help: "Total Alpaca HTTP calls by device type, operation and result",
			},
			[]string{"device_type", "op", "result"},
		)
		alpacaLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "alpaca_call_latency_seconds",
				Help:    "Alpaca HTTP call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"device_type", "op"},
		)
		alpacaErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alpaca_errors_total",
				Help: "Total Alpaca call failures by error kind",
			},
			[]string{"kind"},
		)

		connectionTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "connection_transitions_total",
				Help: "Total device connection transitions by target state and result",
			},
			[]string{"target", "result"},
		)
		devicesByState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices",
				Help: "Registered devices by connection state",
			},
			[]string{"state"},
		)

		discoveryScans = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "discovery_scans_total",
				Help: "Total discovery scans by result",
			},
			[]string{"result"},
		)
		discoveryLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "discovery_scan_latency_seconds",
				Help:    "Discovery scan latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		serversKnown = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "discovery_servers_known",
				Help: "Alpaca servers currently known to the hub",
			},
		)

		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Total bus events published by type",
			},
			[]string{"type"},
		)

		prometheus.MustRegister(
			alpacaCalls,
			alpacaLatency,
			alpacaErrors,
			connectionTransitions,
			devicesByState,
			discoveryScans,
			discoveryLatency,
			serversKnown,
			eventsPublished,
		)
	})
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAlpacaCall records one Alpaca HTTP call.
func ObserveAlpacaCall(deviceType, op string, duration time.Duration, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if alpacaCalls != nil {
		alpacaCalls.WithLabelValues(deviceType, op, result).Inc()
	}
	if alpacaLatency != nil {
		alpacaLatency.WithLabelValues(deviceType, op).Observe(duration.Seconds())
	}
}

// IncAlpacaError increments the failure counter for an error kind.
func IncAlpacaError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if alpacaErrors != nil {
		alpacaErrors.WithLabelValues(kind).Inc()
	}
}

// IncConnectionTransition records a connect or disconnect outcome.
func IncConnectionTransition(target string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if connectionTransitions != nil {
		connectionTransitions.WithLabelValues(target, result).Inc()
	}
}

// SetDevicesByState sets the device gauge for one connection state.
func SetDevicesByState(state string, n int) {
	if devicesByState != nil {
		devicesByState.WithLabelValues(state).Set(float64(n))
	}
}

// ObserveDiscoveryScan records one discovery pass.
func ObserveDiscoveryScan(duration time.Duration, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if discoveryScans != nil {
		discoveryScans.WithLabelValues(result).Inc()
	}
	if discoveryLatency != nil {
		discoveryLatency.Observe(duration.Seconds())
	}
}

// SetServersKnown sets the known server gauge.
func SetServersKnown(n int) {
	if serversKnown != nil {
		serversKnown.Set(float64(n))
	}
}

// IncEventPublished counts a bus event by type.
func IncEventPublished(eventType string) {
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(eventType).Inc()
	}
}
