package timeseries

//go:generate go run go.uber.org/mock/mockgen -source=observer.go -destination=mock_observer.go -package=timeseries

import (
	"errors"
	"time"
)

// Outcome classifies how a read ended.
type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeStale     Outcome = "stale"
)

// OutcomeOf maps an error returned by a read to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeReady
	case errors.Is(err, ErrStaleIndex):
		return OutcomeStale
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeTimeout
	}
}

// Observer receives notifications from a Timeseries. Calls are made outside
// the series lock, from the goroutine doing the append or read, so
// implementations must be safe for concurrent use and should return quickly.
type Observer interface {
	ObserveAppend(length int, evicted bool)
	ObserveRead(outcome Outcome, waited time.Duration)
}
