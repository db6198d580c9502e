package contentapi

import (
	"log/slog"
	"time"

	"streamfinder/config"
	"streamfinder/metrics"

	"github.com/sony/gobreaker/v2"
)

// newBreaker opens after BreakerFailureThreshold consecutive failures and probes
// again after BreakerOpenSeconds. Client errors (4xx) count as successes.
func newBreaker(name string, cfg config.UpstreamSettings) *gobreaker.CircuitBreaker[[]byte] {
	threshold := uint32(cfg.BreakerFailureThreshold)
	if threshold == 0 {
		threshold = 5
	}
	openFor := time.Duration(cfg.BreakerOpenSeconds) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	metrics.BreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
