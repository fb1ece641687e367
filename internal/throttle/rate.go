package throttle

import (
	"math"
	"time"
)

// submissionRateDividend scales the inverse interval to submissions/sec.
const submissionRateDividend = 1000.0

// SubmissionRate returns the instantaneous rate between two submissions in
// submissions/sec, where a is the later instant (usually now) and b the
// earlier one (the stored failure). Millisecond resolution.
//
// Equal instants return +Inf. If a precedes b the result is negative.
func SubmissionRate(a, b time.Time) float64 {
	delta := a.UnixMilli() - b.UnixMilli()
	if delta == 0 {
		return math.Inf(1)
	}
	return submissionRateDividend / float64(delta)
}

// Clock supplies the current time to the sweeper and middleware.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the UTC wall clock.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
