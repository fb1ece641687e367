package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/authgate/internal/version"
)

// Login attempt results
const (
	LoginOK        = "ok"
	LoginInvalid   = "invalid"
	LoginMalformed = "malformed"
	LoginThrottled = "throttled"
	LoginError     = "error"
)

type ServerMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	errTotal  *prometheus.CounterVec

	httpPanicTotal  prometheus.Counter
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// throttle
	throttledTotal       prometheus.Counter
	throttleFailureTotal prometheus.Counter
	throttleTrackedKeys  prometheus.Gauge
	sweepRunsTotal       *prometheus.CounterVec
	sweepEvictedTotal    prometheus.Counter
	sweepDuration        prometheus.Histogram
	sweepLastRunTs       prometheus.Gauge

	// login / credentials
	loginAttemptsTotal   *prometheus.CounterVec
	credentialsUsers     prometheus.Gauge
	credentialsLoadedTs  prometheus.Gauge
	credentialsLoadError prometheus.Counter
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536},
		}, []string{"method", "route"}),
		errTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		throttledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_denied_total",
			Help: "Total submissions rejected because their key exceeded the failure threshold rate",
		}),
		throttleFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_failures_recorded_total",
			Help: "Total failed submissions recorded in the throttle store",
		}),
		throttleTrackedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "throttle_tracked_keys",
			Help: "Number of keys in the throttle store after the last sweep",
		}),
		sweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "throttle_sweep_runs_total",
			Help: "Total throttle sweep passes by result",
		}, []string{"result"}),
		sweepEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_sweep_evicted_total",
			Help: "Total keys evicted by throttle sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "throttle_sweep_duration_seconds",
			Help:    "Time spent in a single throttle sweep pass",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		sweepLastRunTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "throttle_sweep_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last throttle sweep pass",
		}),
		loginAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total login attempts by result",
		}, []string{"result"}),
		credentialsUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credentials_users",
			Help: "Number of users in the active credential set",
		}),
		credentialsLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credentials_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the active credential set was loaded",
		}),
		credentialsLoadError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credentials_load_errors_total",
			Help: "Total failed credential set loads",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.profilingActive,
		m.throttledTotal,
		m.throttleFailureTotal,
		m.throttleTrackedKeys,
		m.sweepRunsTotal,
		m.sweepEvictedTotal,
		m.sweepDuration,
		m.sweepLastRunTs,
		m.loginAttemptsTotal,
		m.credentialsUsers,
		m.credentialsLoadedTs,
		m.credentialsLoadError,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	m.profilingActive.Set(boolGauge(active))
}

func (m *ServerMetrics) IncThrottled() {
	m.throttledTotal.Inc()
}

func (m *ServerMetrics) IncThrottleFailure() {
	m.throttleFailureTotal.Inc()
}

// ObserveSweep records one sweep pass. A failed pass still updates the
// last-run timestamp so a stuck sweeper shows up as a stale timestamp while
// a panicking one shows up in result="error".
func (m *ServerMetrics) ObserveSweep(started time.Time, d time.Duration, evicted, remaining int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweepRunsTotal.WithLabelValues(result).Inc()
	m.sweepEvictedTotal.Add(float64(evicted))
	m.sweepDuration.Observe(d.Seconds())
	m.sweepLastRunTs.Set(float64(started.Unix()))
	m.throttleTrackedKeys.Set(float64(remaining))
}

func (m *ServerMetrics) IncLoginAttempt(result string) {
	m.loginAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) SetCredentialsLoaded(users int, at time.Time) {
	m.credentialsUsers.Set(float64(users))
	m.credentialsLoadedTs.Set(float64(at.Unix()))
}

func (m *ServerMetrics) IncCredentialsLoadError() {
	m.credentialsLoadError.Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
