// Package throttle provides brute-force protection for credential submissions.
//
// A Store remembers, per client key, the time of the most recent failed
// submission. Before a submission is processed the caller asks whether the key
// exceeds the threshold rate; after a failed submission it records the new
// failure time. A Sweeper periodically evicts keys whose rate has decayed
// below the threshold so the map does not grow without bound.
//
// The rate is an inverse-interval pseudo-rate over the last failure only:
// 1000 / (now - lastFailure) in milliseconds. Two failures in the same
// millisecond count as an infinite rate. A failure recorded "in the future"
// (clock skew) yields a negative rate, which never throttles and is always
// evicted.
//
// State is local to the process. It is not shared between instances and does
// not survive a restart.
package throttle
