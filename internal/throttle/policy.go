package throttle

import (
	"errors"
	"fmt"
	"time"
)

// Policy expresses the threshold as "FailureThreshold failures per FailureRange".
type Policy struct {
	FailureThreshold int
	FailureRange     time.Duration
}

// DefaultPolicy allows 100 failures per minute.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 100,
		FailureRange:     60 * time.Second,
	}
}

// ThresholdRate returns the policy as submissions/sec.
func (p Policy) ThresholdRate() float64 {
	return float64(p.FailureThreshold) / p.FailureRange.Seconds()
}

// Validate reports every out-of-range field, joined.
func (p Policy) Validate() error {
	var errs []error
	if p.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("failure threshold must be >= 1 (got %d)", p.FailureThreshold))
	}
	if p.FailureRange <= 0 {
		errs = append(errs, fmt.Errorf("failure range must be > 0 (got %s)", p.FailureRange))
	}
	return errors.Join(errs...)
}
