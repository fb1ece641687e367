package throttle

import (
	"context"
	"time"

	"github.com/keithlinneman/authgate/internal/log"
	"github.com/keithlinneman/authgate/internal/xerrors"
)

const (
	// DefaultSweepInterval is the time between sweeps.
	DefaultSweepInterval = 5000 * time.Millisecond

	// DefaultSweepStartDelay is the time before the first sweep after Run is called.
	DefaultSweepStartDelay = 5000 * time.Millisecond
)

// SweepResult describes a single sweep pass.
type SweepResult struct {
	Started   time.Time
	Duration  time.Duration
	Evicted   int
	Remaining int
	// Err is set when the pass panicked; the store may be partially swept.
	Err error
}

// Sweeper drives Store.Sweep on a fixed schedule.
type Sweeper struct {
	store      *Store
	interval   time.Duration
	startDelay time.Duration
	clock      Clock
	logger     log.Logger
	onSweep    func(SweepResult)
}

type SweeperOption func(*Sweeper)

// WithInterval sets the time between sweeps. Non-positive values are ignored.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStartDelay sets the delay before the first sweep. Zero sweeps
// immediately rather than disabling the sweeper; negative values are ignored.
func WithStartDelay(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d >= 0 {
			s.startDelay = d
		}
	}
}

// WithSweepClock overrides the clock used to compute "now" for each pass.
func WithSweepClock(c Clock) SweeperOption {
	return func(s *Sweeper) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithSweepLogger(l log.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOnSweep sets a callback invoked after every pass, used for metrics.
// Called synchronously on the sweeper goroutine.
func WithOnSweep(fn func(SweepResult)) SweeperOption {
	return func(s *Sweeper) {
		s.onSweep = fn
	}
}

// NewSweeper creates a Sweeper for store. Call Run to start the loop.
func NewSweeper(store *Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:      store,
		interval:   DefaultSweepInterval,
		startDelay: DefaultSweepStartDelay,
		clock:      SystemClock,
		logger:     log.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run sweeps the store after the start delay and then every interval until
// ctx is cancelled. Intended to be launched as: go sweeper.Run(ctx, rate)
func (s *Sweeper) Run(ctx context.Context, thresholdRate float64) error {
	s.logger.Info(ctx, "throttle sweeper starting",
		"interval", s.interval.String(),
		"start_delay", s.startDelay.String(),
		"threshold_rate", thresholdRate,
	)

	delay := time.NewTimer(s.startDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "throttle sweeper stopping before first sweep", "reason", ctx.Err())
		return ctx.Err()
	case <-delay.C:
	}

	s.SweepOnce(ctx, thresholdRate)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "throttle sweeper stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx, thresholdRate)
		}
	}
}

// SweepOnce runs a single pass. It never panics: a panic inside the pass is
// logged and returned in SweepResult.Err so the loop keeps its schedule, and
// a panicking OnSweep callback is logged and dropped.
func (s *Sweeper) SweepOnce(ctx context.Context, thresholdRate float64) (res SweepResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			res.Err = xerrors.Newf("throttle sweep panicked: %v", rec)
			s.logger.Error(ctx, res.Err, "throttle sweep failed")
		}
		res.Duration = time.Since(start)
		res.Remaining = s.store.Len()
		s.notify(ctx, res)
	}()

	res.Started = s.clock.Now()
	s.logger.Debug(ctx, "throttle sweep starting", "keys", s.store.Len())
	res.Evicted = s.store.Sweep(thresholdRate, res.Started)
	s.logger.Debug(ctx, "throttle sweep done",
		"evicted", res.Evicted,
		"remaining", s.store.Len(),
	)
	return res
}

func (s *Sweeper) notify(ctx context.Context, res SweepResult) {
	if s.onSweep == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(ctx, xerrors.Newf("OnSweep panic: %v", rec),
				"throttle sweeper: OnSweep callback panicked, continuing")
		}
	}()
	s.onSweep(res)
}
