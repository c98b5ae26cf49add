package core

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/usageflows/chatbot/pkg/metrics"
)

type Metrics struct {
	apiResponseTime     *prometheus.HistogramVec
	apiErrorCounter     *prometheus.CounterVec
	gatewayRequestTime  *prometheus.HistogramVec
	gatewayErrorCounter *prometheus.CounterVec
	persistErrorCounter *prometheus.CounterVec
}

func NewMetrics(ns, system string) *Metrics {
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	return &Metrics{
		apiResponseTime:     metrics.NewHistogramVec("api_response_time", []string{"api"}),
		apiErrorCounter:     metrics.NewCounterVec("api_error", []string{"method", "api", "status"}),
		gatewayRequestTime:  metrics.NewHistogramVec("gateway_request_time", []string{"model"}),
		gatewayErrorCounter: metrics.NewCounterVec("gateway_error", []string{"status"}),
		persistErrorCounter: metrics.NewCounterVec("persist_error", []string{"op"}),
	}
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

func (m *Metrics) ApiErrorInc(method, api string, status int) {
	m.apiErrorCounter.WithLabelValues(method, api, strconv.Itoa(status)).Inc()
}

func (m *Metrics) GatewayRequestTimer(model string) *prometheus.Timer {
	return prometheus.NewTimer(m.gatewayRequestTime.WithLabelValues(model))
}

func (m *Metrics) GatewayErrorInc(status int) {
	m.gatewayErrorCounter.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) PersistErrorInc(op string) {
	m.persistErrorCounter.WithLabelValues(op).Inc()
}
