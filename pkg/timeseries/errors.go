package timeseries

import "errors"

var (
	ErrInvalidCapacity     = errors.New("capacity must be greater than 0")
	ErrInvalidPollInterval = errors.New("poll interval must be greater than 0")

	// ErrTimeout is returned when the requested index did not become
	// available within the timeout.
	ErrTimeout = errors.New("timed out waiting for index")
	// ErrCancelled is returned when the wait was given up because the
	// cancellation token fired, the context ended or the series was closed.
	ErrCancelled = errors.New("wait cancelled")
	// ErrStaleIndex is returned for an index older than the oldest retained
	// element. Reads of stale indices never block.
	ErrStaleIndex = errors.New("index has been evicted")
)

// IsTimeout reports whether err means that no value was obtained because the
// wait ended early, either by timeout or by cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled)
}
