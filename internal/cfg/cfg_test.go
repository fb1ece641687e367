package cfg

import (
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet, parses the given args,
// and returns the resulting App. This isolates each test from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if !c.LogJSON {
		t.Error("LogJSON: want true")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel: want %q, got %q", "info", c.LogLevel)
	}
	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080, got %d", c.HTTPPort)
	}
	if c.AdminPort != 9000 {
		t.Errorf("AdminPort: want 9000, got %d", c.AdminPort)
	}
	if c.TrustedHops != 0 {
		t.Errorf("TrustedHops: want 0, got %d", c.TrustedHops)
	}
	if c.ThrottleFailureThreshold != 100 {
		t.Errorf("ThrottleFailureThreshold: want 100, got %d", c.ThrottleFailureThreshold)
	}
	if c.ThrottleFailureRange != time.Minute {
		t.Errorf("ThrottleFailureRange: want 1m, got %s", c.ThrottleFailureRange)
	}
	if c.ThrottleKey != KeyIP {
		t.Errorf("ThrottleKey: want %q, got %q", KeyIP, c.ThrottleKey)
	}
	if c.ThrottleSweepInterval != 5*time.Second {
		t.Errorf("ThrottleSweepInterval: want 5s, got %s", c.ThrottleSweepInterval)
	}
	if c.ThrottleSweepStartDelay != 5*time.Second {
		t.Errorf("ThrottleSweepStartDelay: want 5s, got %s", c.ThrottleSweepStartDelay)
	}
	if c.CredentialsSource != SourceFile {
		t.Errorf("CredentialsSource: want %q, got %q", SourceFile, c.CredentialsSource)
	}
	if c.CredentialsReloadInterval != 5*time.Minute {
		t.Errorf("CredentialsReloadInterval: want 5m, got %s", c.CredentialsReloadInterval)
	}
	if err := Validate(c); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-log-json=false",
		"-http-port=9090",
		"-trusted-hops=2",
		"-throttle-failure-threshold=5",
		"-throttle-failure-range=10s",
		"-throttle-key=ip-username",
		"-throttle-username-param=email",
		"-throttle-sweep-interval=250ms",
		"-throttle-sweep-start-delay=0s",
		"-credentials-source=s3",
		"-credentials-s3-bucket=auth-bucket",
		"-credentials-s3-key=users.yaml",
	})

	if c.LogJSON {
		t.Error("LogJSON: want false")
	}
	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090, got %d", c.HTTPPort)
	}
	if c.TrustedHops != 2 {
		t.Errorf("TrustedHops: want 2, got %d", c.TrustedHops)
	}
	if c.ThrottleFailureThreshold != 5 || c.ThrottleFailureRange != 10*time.Second {
		t.Errorf("throttle policy: got %d/%s", c.ThrottleFailureThreshold, c.ThrottleFailureRange)
	}
	if c.ThrottleKey != KeyIPUsername || c.ThrottleUsernameParam != "email" {
		t.Errorf("throttle key: got %q param %q", c.ThrottleKey, c.ThrottleUsernameParam)
	}
	if c.ThrottleSweepInterval != 250*time.Millisecond || c.ThrottleSweepStartDelay != 0 {
		t.Errorf("sweep timing: got %s/%s", c.ThrottleSweepInterval, c.ThrottleSweepStartDelay)
	}
	if c.CredentialsSource != SourceS3 || c.CredentialsS3Bucket != "auth-bucket" || c.CredentialsS3Key != "users.yaml" {
		t.Errorf("credentials: got %q %q %q", c.CredentialsSource, c.CredentialsS3Bucket, c.CredentialsS3Key)
	}
	if err := Validate(c); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey(EnvPrefix, "throttle-sweep-interval"); got != "AUTHGATE_THROTTLE_SWEEP_INTERVAL" {
		t.Errorf("envKey = %q", got)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"LOG_LEVEL", "debug")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"THROTTLE_FAILURE_THRESHOLD", "20")
	t.Setenv(pfx+"THROTTLE_FAILURE_RANGE", "2m")
	t.Setenv(pfx+"CREDENTIALS_SOURCE", "ssm")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, pfx, nil)

	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort: want 8088, got %d", c.HTTPPort)
	}
	if c.ThrottleFailureThreshold != 20 {
		t.Errorf("ThrottleFailureThreshold: want 20, got %d", c.ThrottleFailureThreshold)
	}
	if c.ThrottleFailureRange != 2*time.Minute {
		t.Errorf("ThrottleFailureRange: want 2m, got %s", c.ThrottleFailureRange)
	}
	if c.CredentialsSource != SourceSSM {
		t.Errorf("CredentialsSource: want ssm, got %q", c.CredentialsSource)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"THROTTLE_KEY", "ip-username")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9999"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var msgs []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 9999 {
		t.Errorf("HTTPPort: want 9999 (cli), got %d", c.HTTPPort)
	}
	if c.ThrottleKey != KeyIPUsername {
		t.Errorf("ThrottleKey: want %q (env), got %q", KeyIPUsername, c.ThrottleKey)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "overrides env") {
		t.Errorf("expected one override message, got %v", msgs)
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"THROTTLE_SWEEP_INTERVAL", "soon")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var msgs []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	})

	if c.ThrottleSweepInterval != 5*time.Second {
		t.Errorf("ThrottleSweepInterval: want default 5s, got %s", c.ThrottleSweepInterval)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "ignoring invalid env") {
		t.Errorf("expected one ignore message, got %v", msgs)
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
		"-credentials-source=ssm",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-trusted-hops=-1",
		"-log-level=nope",
		"-stacktrace-level=alsonope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-max-error-links=0",
		"-throttle-failure-threshold=0",
		"-throttle-failure-range=0s",
		"-throttle-key=cookie",
		"-throttle-sweep-interval=0s",
		"-throttle-sweep-start-delay=-1s",
		"-credentials-source=s3",
		"-credentials-s3-key=",
		"-credentials-reload-interval=-1m",
	})

	err := Validate(c)
	wantErrContains(t, err, "invalid HTTP_PORT")
	wantErrContains(t, err, "invalid ADMIN_PORT")
	wantErrContains(t, err, "TRUSTED_HOPS")
	wantErrContains(t, err, "invalid LOG_LEVEL")
	wantErrContains(t, err, "invalid STACKTRACE_LEVEL")
	wantErrContains(t, err, "invalid TRACE_SAMPLE")
	wantErrContains(t, err, "PYRO_SERVER must be a URL")
	wantErrContains(t, err, "PYRO_TENANT required")
	wantErrContains(t, err, "OTLP_ENDPOINT must be host:port")
	wantErrContains(t, err, "MAX_ERROR_LINKS")
	wantErrContains(t, err, "failure threshold must be >= 1")
	wantErrContains(t, err, "failure range must be > 0")
	wantErrContains(t, err, "invalid THROTTLE_KEY")
	wantErrContains(t, err, "THROTTLE_SWEEP_INTERVAL")
	wantErrContains(t, err, "THROTTLE_SWEEP_START_DELAY")
	wantErrContains(t, err, "CREDENTIALS_S3_BUCKET required")
	wantErrContains(t, err, "CREDENTIALS_S3_KEY required")
	wantErrContains(t, err, "CREDENTIALS_RELOAD_INTERVAL")
}

func TestValidate_UsernameParamRequired(t *testing.T) {
	c := newTestConfig(t, []string{"-throttle-key=ip-username", "-throttle-username-param= "})
	wantErrContains(t, Validate(c), "THROTTLE_USERNAME_PARAM required")
}

func TestValidate_UnknownCredentialsSource(t *testing.T) {
	c := newTestConfig(t, []string{"-credentials-source=vault"})
	wantErrContains(t, Validate(c), "invalid CREDENTIALS_SOURCE")
}

func TestThrottlePolicy(t *testing.T) {
	c := newTestConfig(t, []string{"-throttle-failure-threshold=5", "-throttle-failure-range=10s"})
	p := c.ThrottlePolicy()
	if p.FailureThreshold != 5 || p.FailureRange != 10*time.Second {
		t.Fatalf("ThrottlePolicy = %+v", p)
	}
	if got := p.ThresholdRate(); got != 0.5 {
		t.Fatalf("ThresholdRate = %v, want 0.5", got)
	}
}

func TestValidate_ThrottlePolicyDelegates(t *testing.T) {
	c := newTestConfig(t, []string{"-throttle-failure-threshold=0"})
	err := Validate(c)
	wantErrContains(t, err, "invalid THROTTLE_FAILURE_THRESHOLD/THROTTLE_FAILURE_RANGE")
	wantErrContains(t, err, "failure threshold must be >= 1 (got 0)")
}
