package credstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/keithlinneman/authgate/internal/cryptoutil"
	"github.com/keithlinneman/authgate/internal/log"
)

const (
	// DefaultReloadInterval is how often the Reloader re-fetches the document.
	DefaultReloadInterval = 5 * time.Minute

	// maxBackoff caps exponential backoff on consecutive fetch errors.
	maxBackoff = 30 * time.Minute
)

type reloadResult int

const (
	reloadNoChange   reloadResult = iota // digest matches the active set
	reloadSwapped                        // new document parsed and swapped in
	reloadFetchError                     // source unreachable, back off
	reloadParseError                     // fetched but invalid, active set kept
)

// ReloaderOptions configures a Reloader.
type ReloaderOptions struct {
	Logger   log.Logger
	Store    *Store
	Source   Source
	Interval time.Duration

	// OnSwap is called on the reload goroutine after a new set is swapped in.
	OnSwap func(s *Set)

	// OnError is called for every failed fetch or parse.
	OnError func(err error)
}

// Reloader periodically re-fetches the credentials document and swaps
// in a new Set when its digest changes.
type Reloader struct {
	store    *Store
	source   Source
	logger   log.Logger
	interval time.Duration
	onSwap   func(*Set)
	onError  func(error)

	consecutiveErrs int
}

func NewReloader(opts ReloaderOptions) *Reloader {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	return &Reloader{
		store:    opts.Store,
		source:   opts.Source,
		logger:   opts.Logger,
		interval: interval,
		onSwap:   opts.OnSwap,
		onError:  opts.OnError,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	r.logger.Info(ctx, "credentials reloader starting",
		"source", r.source.String(),
		"interval", r.interval.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "credentials reloader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			res := r.checkOnce(ctx)
			if res == reloadFetchError {
				r.consecutiveErrs++
				backoff := r.backoffDuration()
				r.logger.Warn(ctx, "credentials reloader: backing off",
					"consecutive_errors", r.consecutiveErrs,
					"next_reload_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if r.consecutiveErrs > 0 {
				r.logger.Info(ctx, "credentials reloader: recovered, resuming normal interval",
					"had_consecutive_errors", r.consecutiveErrs,
				)
				r.consecutiveErrs = 0
				ticker.Reset(r.interval)
			}
		}
	}
}

func (r *Reloader) checkOnce(ctx context.Context) reloadResult {
	data, err := r.source.Fetch(ctx)
	if err != nil {
		r.logger.Error(ctx, err, "credentials reloader: fetch failed", "source", r.source.String())
		r.reportError(err)
		return reloadFetchError
	}

	current := ""
	if s, ok := r.store.Get(); ok {
		current = s.Digest()
	}
	if cryptoutil.DigestEqual(cryptoutil.Digest(data), current) {
		return reloadNoChange
	}

	s, err := Parse(data)
	if err != nil {
		r.logger.Error(ctx, err, "credentials reloader: new document rejected, keeping current set",
			"source", r.source.String(),
			"current_digest", truncDigest(current),
		)
		r.reportError(err)
		return reloadParseError
	}

	r.store.Set(s)
	r.logger.Info(ctx, "credentials reloader: credentials swapped",
		"old_digest", truncDigest(current),
		"new_digest", truncDigest(s.Digest()),
		"users", s.Len(),
	)

	if r.onSwap != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", rec),
						"credentials reloader: OnSwap callback panicked, continuing")
				}
			}()
			r.onSwap(s)
		}()
	}
	return reloadSwapped
}

func (r *Reloader) reportError(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

// consecutiveErrs=1 → 2x interval, =2 → 4x, capped at maxBackoff.
func (r *Reloader) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(r.consecutiveErrs))
	d := time.Duration(float64(r.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func truncDigest(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
