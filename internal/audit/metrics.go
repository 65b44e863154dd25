package audit

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway metrics and serves them in Prometheus text format.
// It uses a custom prometheus.Registry for isolation and testability.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	sessionsIssued   *prometheus.CounterVec
	rateLimitHits    *prometheus.CounterVec
	securityBlocks   *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
	backendHealth    prometheus.Gauge
	configReloads    *prometheus.CounterVec
	configReloadTime prometheus.Gauge
	buildInfo        *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics collector with a custom Prometheus
// registry. All metric families are pre-registered with HELP and TYPE
// metadata.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cordon_requests_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"route", "method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cordon_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),

		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cordon_active_sessions",
			Help: "Number of currently valid sessions.",
		}),

		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cordon_sessions_issued_total",
			Help: "Total number of sessions issued, by authentication source.",
		}, []string{"source"}),

		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cordon_rate_limit_hits_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"route"}),

		securityBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cordon_security_blocks_total",
			Help: "Total number of requests blocked for security reasons.",
		}, []string{"reason"}),

		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cordon_upstream_latency_seconds",
			Help:    "Backend response time in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		backendHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cordon_backend_health",
			Help: "Backend reachability (1=reachable, 0=unreachable).",
		}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cordon_config_reloads_total",
			Help: "Total number of configuration reload attempts.",
		}, []string{"result"}),

		configReloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cordon_config_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful configuration reload.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cordon_build_info",
			Help: "Build information about the cordon binary. Value is always 1.",
		}, []string{"version", "go_version"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeSessions,
		m.sessionsIssued,
		m.rateLimitHits,
		m.securityBlocks,
		m.upstreamLatency,
		m.backendHealth,
		m.configReloads,
		m.configReloadTime,
		m.buildInfo,
	)

	return m
}

// RecordRequest increments the request counter for the given route, method,
// and status code.
func (m *Metrics) RecordRequest(route, method string, status int) {
	m.requestsTotal.WithLabelValues(route, method, statusString(status)).Inc()
}

// RecordDuration records request duration for the given route and method.
func (m *Metrics) RecordDuration(route, method string, d time.Duration) {
	m.requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// SetActiveSessions sets the valid session count.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// RecordSessionIssued counts an issued session. Source is "session" for
// self-service tokens or "federated" for provider logins.
func (m *Metrics) RecordSessionIssued(source string) {
	m.sessionsIssued.WithLabelValues(source).Inc()
}

// RecordRateLimitHit records a rate limit rejection on the given route.
func (m *Metrics) RecordRateLimitHit(route string) {
	m.rateLimitHits.WithLabelValues(route).Inc()
}

// RecordSecurityBlock records a blocked request. Reason is one of
// "unauthenticated", "forbidden", "rate_limit", "invalid_target".
func (m *Metrics) RecordSecurityBlock(reason string) {
	m.securityBlocks.WithLabelValues(reason).Inc()
}

// RecordUpstreamLatency records backend response time.
func (m *Metrics) RecordUpstreamLatency(d time.Duration) {
	m.upstreamLatency.Observe(d.Seconds())
}

// SetBackendHealth sets backend reachability. Pass true for reachable.
func (m *Metrics) SetBackendHealth(reachable bool) {
	var val float64
	if reachable {
		val = 1
	}
	m.backendHealth.Set(val)
}

// RecordConfigReload records a configuration reload attempt.
// Pass true for a successful reload, false for a failure.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetConfigReloadTime records the timestamp of the last successful reload.
func (m *Metrics) SetConfigReloadTime(t time.Time) {
	m.configReloadTime.Set(float64(t.Unix()))
}

// SetBuildInfo sets the build information gauge. The gauge value is always
// 1; version and Go version are exposed as labels.
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.buildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Handler returns an HTTP handler that serves /metrics in Prometheus text
// format with HELP and TYPE annotations.
func (m *Metrics) Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}
}

// statusString converts an integer status code to its string form without
// fmt.Sprintf on the hot path.
func statusString(code int) string {
	switch code {
	case 200:
		return "200"
	case 201:
		return "201"
	case 204:
		return "204"
	case 302:
		return "302"
	case 400:
		return "400"
	case 401:
		return "401"
	case 403:
		return "403"
	case 404:
		return "404"
	case 429:
		return "429"
	case 500:
		return "500"
	case 502:
		return "502"
	case 503:
		return "503"
	default:
		return intToString(code)
	}
}

func intToString(n int) string {
	if n == 0 {
		return "0"
	}
	negative := n < 0
	if negative {
		n = -n
	}
	buf := make([]byte, 0, 5)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	if negative {
		buf = append(buf, '-')
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
