package throttle

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/authgate/internal/log"
)

// Throttler is HTTP middleware that rejects submissions from keys over the
// threshold and records failed submissions in the Store.
type Throttler struct {
	store   *Store
	policy  Policy
	keyFn   KeyFunc
	clock   Clock
	logger  log.Logger
	methods map[string]bool
	failing map[int]bool

	// logLimit caps denial warnings; every denial still reaches onThrottled
	logLimit *rate.Limiter

	onThrottled func(ctx context.Context, key string)
	onFailure   func(ctx context.Context, key string)
}

type Option func(*Throttler)

// WithKeyFunc sets how requests are mapped to throttle keys. Default ByIPAddress.
func WithKeyFunc(fn KeyFunc) Option {
	return func(t *Throttler) {
		if fn != nil {
			t.keyFn = fn
		}
	}
}

func WithClock(c Clock) Option {
	return func(t *Throttler) {
		if c != nil {
			t.clock = c
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(t *Throttler) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMethods sets which HTTP methods are subject to throttling. Default POST.
func WithMethods(methods ...string) Option {
	return func(t *Throttler) {
		if len(methods) == 0 {
			return
		}
		t.methods = make(map[string]bool, len(methods))
		for _, m := range methods {
			t.methods[m] = true
		}
	}
}

// WithFailureStatuses sets which response codes count as a failed submission. Default 401.
func WithFailureStatuses(codes ...int) Option {
	return func(t *Throttler) {
		if len(codes) == 0 {
			return
		}
		t.failing = make(map[int]bool, len(codes))
		for _, c := range codes {
			t.failing[c] = true
		}
	}
}

// WithOnThrottled sets a callback for every rejected submission, used for prometheus counters.
func WithOnThrottled(fn func(ctx context.Context, key string)) Option {
	return func(t *Throttler) {
		t.onThrottled = fn
	}
}

// WithOnFailure sets a callback for every recorded failure.
func WithOnFailure(fn func(ctx context.Context, key string)) Option {
	return func(t *Throttler) {
		t.onFailure = fn
	}
}

// WithDenialLogRate limits how many "submission throttled" warnings are logged.
// perSecond <= 0 disables denial logging entirely.
func WithDenialLogRate(perSecond float64, burst int) Option {
	return func(t *Throttler) {
		if perSecond <= 0 {
			t.logLimit = rate.NewLimiter(0, 0)
			return
		}
		t.logLimit = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewThrottler creates a Throttler over store using policy for the threshold rate.
func NewThrottler(store *Store, policy Policy, opts ...Option) *Throttler {
	t := &Throttler{
		store:    store,
		policy:   policy,
		keyFn:    ByIPAddress,
		clock:    SystemClock,
		logger:   log.Nop(),
		methods:  map[string]bool{http.MethodPost: true},
		failing:  map[int]bool{http.StatusUnauthorized: true},
		logLimit: rate.NewLimiter(1, 10),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ThresholdRate returns the configured threshold in submissions/sec.
func (t *Throttler) ThresholdRate() float64 { return t.policy.ThresholdRate() }

func (t *Throttler) key(r *http.Request) string {
	if k := t.keyFn(r); k != "" {
		return k
	}
	return unknownKey
}

// statusRecorder captures the final status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

// Middleware rejects throttled submissions with 423 and records failures
// reported by next.
func (t *Throttler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.methods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := t.key(r)
		thresholdRate := t.policy.ThresholdRate()

		if t.store.ExceedsThreshold(key, thresholdRate, t.clock.Now()) {
			if t.logLimit.Allow() {
				t.logger.Warn(ctx, "submission throttled", "key", key, "threshold_rate", thresholdRate)
			}
			if t.onThrottled != nil {
				t.onThrottled(ctx, key)
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusLocked)
			// intentionally not including when the key will be released
			w.Write([]byte(`{"error":"too many failed attempts"}`))
			return
		}

		sw := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		if !t.failing[status] {
			return
		}

		t.store.RecordFailure(key, t.clock.Now())
		t.logger.Debug(ctx, "submission failure recorded", "key", key, "status", status)
		if t.onFailure != nil {
			t.onFailure(ctx, key)
		}
	})
}
