package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/authgate/internal/cfg"
	"github.com/keithlinneman/authgate/internal/credstore"
	"github.com/keithlinneman/authgate/internal/httpmw"
	"github.com/keithlinneman/authgate/internal/httpserver"
	"github.com/keithlinneman/authgate/internal/log"
	"github.com/keithlinneman/authgate/internal/loginhttp"
	"github.com/keithlinneman/authgate/internal/metrics"
	"github.com/keithlinneman/authgate/internal/opshttp"
	"github.com/keithlinneman/authgate/internal/otelx"
	"github.com/keithlinneman/authgate/internal/probe"
	"github.com/keithlinneman/authgate/internal/prof"
	"github.com/keithlinneman/authgate/internal/throttle"
	v "github.com/keithlinneman/authgate/internal/version"
)

const (
	appName   = "authgate"
	component = "server"

	// time between failing readiness and closing listeners
	drainPeriod = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging, levels were checked by Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	var stackLvl slog.Leveler
	if conf.StacktraceLevel != "" {
		l, _ := log.ParseLevel(conf.StacktraceLevel)
		stackLvl = l
	}
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"throttle_failure_threshold", conf.ThrottleFailureThreshold,
		"throttle_failure_range", conf.ThrottleFailureRange.String(),
		"throttle_key", conf.ThrottleKey,
		"throttle_sweep_interval", conf.ThrottleSweepInterval.String(),
		"credentials_source", conf.CredentialsSource,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}

	// Insecure because the collector is on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, component, &vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// credentials must load before we accept logins
	credSrc, err := newCredentialSource(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to create credentials source")
		os.Exit(1)
	}
	creds := credstore.NewStore()
	set, err := creds.Load(ctx, credSrc)
	if err != nil {
		m.IncCredentialsLoadError()
		L.Error(ctx, err, "failed to load credentials", "source", credSrc.String())
		os.Exit(1)
	}
	m.SetCredentialsLoaded(set.Len(), time.Now())
	L.Info(ctx, "loaded credentials", "source", credSrc.String(), "users", set.Len())

	if conf.CredentialsReloadInterval > 0 {
		reloader := credstore.NewReloader(credstore.ReloaderOptions{
			Logger:   L,
			Store:    creds,
			Source:   credSrc,
			Interval: conf.CredentialsReloadInterval,
			OnSwap: func(s *credstore.Set) {
				m.SetCredentialsLoaded(s.Len(), time.Now())
			},
			OnError: func(error) { m.IncCredentialsLoadError() },
		})
		go reloader.Run(ctx)
	}

	// submission throttle
	policy := conf.ThrottlePolicy()
	failures := throttle.NewStore()
	throttler := throttle.NewThrottler(failures, policy,
		throttle.WithLogger(L),
		throttle.WithKeyFunc(throttleKeyFunc(conf)),
		throttle.WithOnThrottled(func(context.Context, string) {
			m.IncThrottled()
			m.IncLoginAttempt(metrics.LoginThrottled)
		}),
		throttle.WithOnFailure(func(context.Context, string) {
			m.IncThrottleFailure()
		}),
	)
	sweeper := throttle.NewSweeper(failures,
		throttle.WithInterval(conf.ThrottleSweepInterval),
		throttle.WithStartDelay(conf.ThrottleSweepStartDelay),
		throttle.WithSweepLogger(L),
		throttle.WithOnSweep(func(res throttle.SweepResult) {
			m.ObserveSweep(res.Started, res.Duration, res.Evicted, res.Remaining, res.Err)
		}),
	)
	go sweeper.Run(ctx, policy.ThresholdRate())

	loginAPI := loginhttp.NewAPI(loginhttp.Options{
		Logger:     L,
		Verifier:   creds,
		Middleware: []func(http.Handler) http.Handler{throttler.Middleware},
		OnResult:   m.IncLoginAttempt,
	})

	var gate probe.ShutdownGate

	// ready once credentials are loaded and until shutdown starts
	readiness := probe.All(
		gate.Probe(),
		probe.Func(creds.Ready),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       probe.Static(true, ""),
		Readiness:    readiness,
		APIRoutes:    loginAPI.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}

	// the admin listener rejects public source addresses in middleware in
	// case the security group is ever misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      probe.Static(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_period", drainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete", "tracked_keys", failures.Len())
}

func newCredentialSource(ctx context.Context, conf cfg.App) (credstore.Source, error) {
	switch conf.CredentialsSource {
	case cfg.SourceSSM:
		return credstore.NewSSMSource(ctx, conf.CredentialsSSMParam)
	case cfg.SourceS3:
		return credstore.NewS3Source(ctx, conf.CredentialsS3Bucket, conf.CredentialsS3Key)
	default:
		return credstore.FileSource{Path: conf.CredentialsFile}, nil
	}
}

func throttleKeyFunc(conf cfg.App) throttle.KeyFunc {
	if conf.ThrottleKey == cfg.KeyIPUsername {
		return throttle.ByIPAddressAndUsername(conf.ThrottleUsernameParam)
	}
	return throttle.ByIPAddress
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	_, _ = conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
