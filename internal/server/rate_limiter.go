// Package server builds per-connection message rate limiters that protect
// the hub from abusive senders.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newMessageLimiter returns a limiter allowing a burst of burst messages,
// refilled evenly over interval. Non-positive inputs fall back to a
// one-message-per-second limiter.
func newMessageLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}
