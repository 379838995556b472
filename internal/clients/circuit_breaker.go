package clients

import (
	"time"

	"github.com/sony/gobreaker"
)

// breakerTripThreshold is the number of consecutive failed deep-health
// probes that opens a breaker.
const breakerTripThreshold = 3

// NewCircuitBreaker returns a gobreaker that trips after three consecutive
// failures and half-opens again after 30 seconds. Breakers guard the
// repeated deep-health probes made while idling; the one-shot bootstrap
// path never goes through them.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripThreshold
		},
	})
}
