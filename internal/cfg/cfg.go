package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/authgate/internal/log"
	"github.com/keithlinneman/authgate/internal/throttle"
)

// EnvPrefix is prepended to upper-cased flag names when reading the environment.
const EnvPrefix = "AUTHGATE_"

// Credential sources
const (
	SourceFile = "file"
	SourceSSM  = "ssm"
	SourceS3   = "s3"
)

// Throttle key strategies
const (
	KeyIP         = "ip"
	KeyIPUsername = "ip-username"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	TrustedHops int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	ThrottleFailureThreshold int
	ThrottleFailureRange     time.Duration
	ThrottleKey              string
	ThrottleUsernameParam    string
	ThrottleSweepInterval    time.Duration
	ThrottleSweepStartDelay  time.Duration

	CredentialsSource   string
	CredentialsFile     string
	CredentialsSSMParam string
	CredentialsS3Bucket string
	CredentialsS3Key    string

	CredentialsReloadInterval time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies in X-Forwarded-For (0 ignores the header)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.IntVar(&c.ThrottleFailureThreshold, "throttle-failure-threshold", 100, "failures allowed per failure range before a key is throttled")
	fs.DurationVar(&c.ThrottleFailureRange, "throttle-failure-range", 60*time.Second, "window the failure threshold is expressed over")
	fs.StringVar(&c.ThrottleKey, "throttle-key", KeyIP, "throttle key: ip|ip-username")
	fs.StringVar(&c.ThrottleUsernameParam, "throttle-username-param", "username", "form field read by -throttle-key=ip-username")
	fs.DurationVar(&c.ThrottleSweepInterval, "throttle-sweep-interval", 5000*time.Millisecond, "interval between throttle sweeps")
	fs.DurationVar(&c.ThrottleSweepStartDelay, "throttle-sweep-start-delay", 5000*time.Millisecond, "delay before the first throttle sweep")

	fs.StringVar(&c.CredentialsSource, "credentials-source", SourceFile, "where to load the credentials document from: file|ssm|s3")
	fs.StringVar(&c.CredentialsFile, "credentials-file", "users.yaml", "credentials document path for -credentials-source=file")
	fs.StringVar(&c.CredentialsSSMParam, "credentials-ssm-param", "/app/authgate/server/credentials", "ssm parameter holding the credentials document")
	fs.StringVar(&c.CredentialsS3Bucket, "credentials-s3-bucket", "", "s3 bucket holding the credentials document")
	fs.StringVar(&c.CredentialsS3Key, "credentials-s3-key", "apps/authgate/server/credentials/users.yaml", "s3 key of the credentials document")
	fs.DurationVar(&c.CredentialsReloadInterval, "credentials-reload-interval", 5*time.Minute, "how often to re-fetch the credentials document (0 disables)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := envKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

func envKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// ThrottlePolicy returns the throttle threshold as configured.
func (c App) ThrottlePolicy() throttle.Policy {
	return throttle.Policy{
		FailureThreshold: c.ThrottleFailureThreshold,
		FailureRange:     c.ThrottleFailureRange,
	}
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Throttle
	if err := c.ThrottlePolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid THROTTLE_FAILURE_THRESHOLD/THROTTLE_FAILURE_RANGE: %w", err))
	}
	switch c.ThrottleKey {
	case KeyIP:
	case KeyIPUsername:
		if strings.TrimSpace(c.ThrottleUsernameParam) == "" {
			errs = append(errs, fmt.Errorf("THROTTLE_USERNAME_PARAM required when THROTTLE_KEY=%s", KeyIPUsername))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid THROTTLE_KEY %q (must be %s|%s)", c.ThrottleKey, KeyIP, KeyIPUsername))
	}
	if c.ThrottleSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("THROTTLE_SWEEP_INTERVAL must be > 0 (got %s)", c.ThrottleSweepInterval))
	}
	if c.ThrottleSweepStartDelay < 0 {
		errs = append(errs, fmt.Errorf("THROTTLE_SWEEP_START_DELAY must be >= 0 (got %s)", c.ThrottleSweepStartDelay))
	}

	// Credentials
	switch c.CredentialsSource {
	case SourceFile:
		if c.CredentialsFile == "" {
			errs = append(errs, fmt.Errorf("CREDENTIALS_FILE required when CREDENTIALS_SOURCE=file"))
		}
	case SourceSSM:
		if c.CredentialsSSMParam == "" {
			errs = append(errs, fmt.Errorf("CREDENTIALS_SSM_PARAM required when CREDENTIALS_SOURCE=ssm"))
		}
	case SourceS3:
		if c.CredentialsS3Bucket == "" {
			errs = append(errs, fmt.Errorf("CREDENTIALS_S3_BUCKET required when CREDENTIALS_SOURCE=s3"))
		}
		if c.CredentialsS3Key == "" {
			errs = append(errs, fmt.Errorf("CREDENTIALS_S3_KEY required when CREDENTIALS_SOURCE=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid CREDENTIALS_SOURCE %q (must be file|ssm|s3)", c.CredentialsSource))
	}

	if c.CredentialsReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("CREDENTIALS_RELOAD_INTERVAL must be >= 0 (got %s)", c.CredentialsReloadInterval))
	}

	return errors.Join(errs...)
}
