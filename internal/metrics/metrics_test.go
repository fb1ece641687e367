package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/authgate/internal/version"
)

// helpers

// gatherMetric collects metrics from the registry and finds one by name.
func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// metricWithLabel returns the sample in family name carrying label=value.
func metricWithLabel(t *testing.T, reg *prometheus.Registry, name, label, value string) *dto.Metric {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m
			}
		}
	}
	t.Fatalf("metric %q has no sample with %s=%q", name, label, value)
	return nil
}

// counterValue returns the value of the first metric in a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	if len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0].GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	return f.GetMetric()[0].GetGauge().GetValue()
}

// histogramCount returns the sample count of the first metric in a histogram family.
func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	if len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0].GetHistogram().GetSampleCount()
}

func TestHandler_ServesMetrics(t *testing.T) {
	m := New()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, name := range []string{
		"http_inflight_requests",
		"http_panic_total",
		"profiling_active",
		"throttle_denied_total",
		"throttle_failures_recorded_total",
		"throttle_tracked_keys",
		"throttle_sweep_last_run_timestamp_seconds",
		"credentials_users",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %q not found in /metrics output", name)
		}
	}
}

func TestHandler_OpenMetricsNegotiation(t *testing.T) {
	m := New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "openmetrics") {
		t.Fatalf("Content-Type = %q, want openmetrics", ct)
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncHttpPanic()
	if got := counterValue(t, b.Registry(), "http_panic_total"); got != 0 {
		t.Fatalf("second registry saw %v panics", got)
	}
}

func TestIncHttpPanic(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncHttpPanic()
	if got := counterValue(t, m.reg, "http_panic_total"); got != 2 {
		t.Fatalf("http_panic_total = %v, want 2", got)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	m := New()
	dirty := true
	m.SetBuildInfoFromVersion("authgate", "server", &version.Info{
		Version:   "v1.0.0",
		Commit:    "abc123",
		GoVersion: "go1.24.0",
		VCSDirty:  &dirty,
	})

	metric := metricWithLabel(t, m.reg, "build_info", "version", "v1.0.0")
	if metric.GetGauge().GetValue() != 1 {
		t.Errorf("build_info value = %v, want 1", metric.GetGauge().GetValue())
	}
	labels := map[string]string{}
	for _, lp := range metric.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["vcs_dirty"] != "true" || labels["commit"] != "abc123" || labels["app"] != "authgate" {
		t.Errorf("unexpected labels %v", labels)
	}
}

func TestSetBuildInfoFromVersion_NilVCSDirty(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion("authgate", "server", &version.Info{Version: "dev"})
	metricWithLabel(t, m.reg, "build_info", "vcs_dirty", "unknown")
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if got := gaugeValue(t, m.reg, "profiling_active"); got != 1 {
		t.Fatalf("profiling_active = %v, want 1", got)
	}
	m.SetProfilingActive(false)
	if got := gaugeValue(t, m.reg, "profiling_active"); got != 0 {
		t.Fatalf("profiling_active = %v, want 0", got)
	}
}

func TestThrottleCounters(t *testing.T) {
	m := New()
	m.IncThrottled()
	m.IncThrottled()
	m.IncThrottleFailure()

	if got := counterValue(t, m.reg, "throttle_denied_total"); got != 2 {
		t.Errorf("throttle_denied_total = %v, want 2", got)
	}
	if got := counterValue(t, m.reg, "throttle_failures_recorded_total"); got != 1 {
		t.Errorf("throttle_failures_recorded_total = %v, want 1", got)
	}
}

func TestObserveSweep(t *testing.T) {
	m := New()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveSweep(started, 2*time.Millisecond, 3, 7, nil)
	m.ObserveSweep(started.Add(5*time.Second), time.Millisecond, 1, 6, errors.New("boom"))

	if got := metricWithLabel(t, m.reg, "throttle_sweep_runs_total", "result", "ok").GetCounter().GetValue(); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := metricWithLabel(t, m.reg, "throttle_sweep_runs_total", "result", "error").GetCounter().GetValue(); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
	if got := counterValue(t, m.reg, "throttle_sweep_evicted_total"); got != 4 {
		t.Errorf("evicted = %v, want 4", got)
	}
	if got := gaugeValue(t, m.reg, "throttle_tracked_keys"); got != 6 {
		t.Errorf("tracked keys = %v, want 6", got)
	}
	if got := gaugeValue(t, m.reg, "throttle_sweep_last_run_timestamp_seconds"); got != float64(started.Unix()+5) {
		t.Errorf("last run = %v, want %d", got, started.Unix()+5)
	}
	if got := histogramCount(t, m.reg, "throttle_sweep_duration_seconds"); got != 2 {
		t.Errorf("duration samples = %d, want 2", got)
	}
}

func TestIncLoginAttempt(t *testing.T) {
	m := New()
	m.IncLoginAttempt(LoginOK)
	m.IncLoginAttempt(LoginInvalid)
	m.IncLoginAttempt(LoginInvalid)

	if got := metricWithLabel(t, m.reg, "login_attempts_total", "result", LoginInvalid).GetCounter().GetValue(); got != 2 {
		t.Errorf("invalid = %v, want 2", got)
	}
	if got := metricWithLabel(t, m.reg, "login_attempts_total", "result", LoginOK).GetCounter().GetValue(); got != 1 {
		t.Errorf("ok = %v, want 1", got)
	}
}

func TestCredentialsMetrics(t *testing.T) {
	m := New()
	at := time.Unix(1_700_000_000, 0)
	m.SetCredentialsLoaded(3, at)
	m.IncCredentialsLoadError()

	if got := gaugeValue(t, m.reg, "credentials_users"); got != 3 {
		t.Errorf("credentials_users = %v, want 3", got)
	}
	if got := gaugeValue(t, m.reg, "credentials_loaded_timestamp_seconds"); got != 1_700_000_000 {
		t.Errorf("loaded ts = %v", got)
	}
	if got := counterValue(t, m.reg, "credentials_load_errors_total"); got != 1 {
		t.Errorf("load errors = %v, want 1", got)
	}
}
