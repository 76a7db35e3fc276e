package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and the renewal lifecycle.
type MetricsService struct {
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	renewals        *prometheus.CounterVec
	passDuration    prometheus.Histogram
	tokenRefresh    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	admissions      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	renewals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_renewals_total",
		Help: "Subscription renewal outcomes by result",
	}, []string{"result"})

	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "subscription_renewal_pass_seconds",
		Help:    "Duration of a full renewal pass",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	tokenRefresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refresh_total",
		Help: "OAuth refresh exchanges by result",
	}, []string{"result"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_notifications_total",
		Help: "Inbound change notifications by result",
	}, []string{"result"})

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_admissions_total",
		Help: "Admission controller outcomes by action",
	}, []string{"action"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, renewals, passDuration, tokenRefresh, notifications, admissions, goroutines)

	return &MetricsService{
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		renewals:        renewals,
		passDuration:    passDuration,
		tokenRefresh:    tokenRefresh,
		notifications:   notifications,
		admissions:      admissions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordRenewal counts n renewal outcomes of one kind.
func (m *MetricsService) RecordRenewal(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.renewals.WithLabelValues(result).Add(float64(n))
}

// ObserveRenewalPass records how long a pass took.
func (m *MetricsService) ObserveRenewalPass(duration time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(duration.Seconds())
}

// RecordTokenRefresh counts a refresh exchange.
func (m *MetricsService) RecordTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordNotification counts an inbound notification.
func (m *MetricsService) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordAdmission counts an admission outcome.
func (m *MetricsService) RecordAdmission(action string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(action).Inc()
}
