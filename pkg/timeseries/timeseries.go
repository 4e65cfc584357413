package timeseries

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rttools/rttools/pkg/cancel"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Index is the logical position of an element in the stream. Indices grow by
// one per append and are never reused.
type Index = int64

// Entry is a retained element together with its index and timestamp.
type Entry[T any] struct {
	Index     Index
	Value     T
	Timestamp time.Time
}

// Timeseries is a fixed-capacity history X[oldest..newest] written by a single
// producer and read by any number of goroutines. Reads of indices that do not
// exist yet block until the producer appends them, the timeout elapses or the
// wait is cancelled. Once full, every append evicts the oldest element.
//
// Sample usage:
//
//	ts, err := timeseries.New[float64](100, timeseries.WithDefaultTimeout(time.Second))
//	...
//	go func() {
//	    for v := range samples {
//	        ts.Append(v)
//	    }
//	}()
//	v, err := ts.Get(42, 500*time.Millisecond)
type Timeseries[T any] struct {
	values     []T
	timestamps []time.Time
	capacity   int

	start  Index
	oldest Index
	newest Index
	tagged Index
	empty  bool
	closed bool

	mu   sync.Mutex
	cond *sync.Cond

	defaultTimeout time.Duration
	pollInterval   time.Duration
	token          *cancel.Token
	clock          clock.PassiveClock
	observer       Observer
	log            logrus.FieldLogger
}

// New returns an empty series holding at most capacity elements. The first
// appended element gets the start index (see WithStartIndex).
func New[T any](capacity int, opts ...Option) (*Timeseries[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.pollInterval <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidPollInterval, o.pollInterval)
	}

	log := o.log
	if o.name != "" {
		log = log.WithField("series", o.name)
	}

	ts := &Timeseries[T]{
		values:         make([]T, capacity),
		timestamps:     make([]time.Time, capacity),
		capacity:       capacity,
		start:          o.start,
		tagged:         o.start - 1,
		empty:          true,
		defaultTimeout: o.defaultTimeout,
		pollInterval:   o.pollInterval,
		token:          o.token,
		clock:          o.clock,
		observer:       o.observer,
		log:            log,
	}
	ts.cond = sync.NewCond(&ts.mu)
	return ts, nil
}

// MustNew is like New but panics on invalid arguments. It is meant for
// package-level series whose capacity is a constant.
func MustNew[T any](capacity int, opts ...Option) *Timeseries[T] {
	ts, err := New[T](capacity, opts...)
	if err != nil {
		panic(err)
	}
	return ts
}

func (ts *Timeseries[T]) slot(index Index) int {
	s := index % Index(ts.capacity)
	if s < 0 {
		s += Index(ts.capacity)
	}
	return int(s)
}

func (ts *Timeseries[T]) lengthLocked() int {
	if ts.empty {
		return 0
	}
	return int(ts.newest - ts.oldest + 1)
}

// Append adds element as the newest entry and wakes every blocked reader. If
// the series is full the oldest element is evicted. Append must only be
// called from one goroutine at a time.
func (ts *Timeseries[T]) Append(element T) {
	ts.mu.Lock()
	if ts.closed {
		ts.mu.Unlock()
		ts.log.Debug("Dropping append to closed series")
		return
	}

	now := ts.clock.Now()
	evicted := false
	var index Index
	if ts.empty {
		index = ts.start
		ts.oldest = index
		ts.empty = false
	} else {
		index = ts.newest + 1
		// timestamps never go backwards, even if the clock does
		if prev := ts.timestamps[ts.slot(ts.newest)]; now.Before(prev) {
			now = prev
		}
		if index-ts.oldest == Index(ts.capacity) {
			ts.oldest++
			evicted = true
		}
	}

	s := ts.slot(index)
	ts.values[s] = element
	ts.timestamps[s] = now
	ts.newest = index
	length := ts.lengthLocked()

	ts.cond.Broadcast()
	ts.mu.Unlock()

	if ts.observer != nil {
		ts.observer.ObserveAppend(length, evicted)
	}
}

// Get returns a copy of the element at index, waiting up to timeout for it to
// be appended. A negative timeout waits forever.
//
// The returned error is nil on success and otherwise wraps ErrTimeout,
// ErrCancelled or ErrStaleIndex; in all error cases the zero value is
// returned.
func (ts *Timeseries[T]) Get(index Index, timeout time.Duration) (T, error) {
	value, _, err := ts.read(context.Background(), index, timeout)
	return value, err
}

// GetContext is like Get with the default timeout, additionally bounded by
// ctx. Cancelling ctx wakes the reader immediately with ErrCancelled; an
// expired ctx deadline yields ErrTimeout.
func (ts *Timeseries[T]) GetContext(ctx context.Context, index Index) (T, error) {
	value, _, err := ts.read(ctx, index, ts.defaultTimeout)
	return value, err
}

// GetWithTimestamp is like Get and also returns the time at which the element
// was appended.
func (ts *Timeseries[T]) GetWithTimestamp(index Index, timeout time.Duration) (T, time.Time, error) {
	return ts.read(context.Background(), index, timeout)
}

// Timestamp returns the time at which the element at index was appended,
// waiting for it like Get.
func (ts *Timeseries[T]) Timestamp(index Index, timeout time.Duration) (time.Time, error) {
	_, stamp, err := ts.read(context.Background(), index, timeout)
	return stamp, err
}

// At returns the element at index using the default timeout. The zero value
// is returned if the element could not be read; use Get to tell why.
func (ts *Timeseries[T]) At(index Index) T {
	value, _ := ts.Get(index, ts.defaultTimeout)
	return value
}

func (ts *Timeseries[T]) read(ctx context.Context, index Index, timeout time.Duration) (T, time.Time, error) {
	var (
		value T
		stamp time.Time
	)
	started := time.Now()

	ts.mu.Lock()
	err := ts.waitFor(ctx, func() bool { return !ts.empty && index <= ts.newest }, timeout)
	if err == nil && index < ts.oldest {
		err = ErrStaleIndex
	}
	if err == nil {
		s := ts.slot(index)
		value = ts.values[s]
		stamp = ts.timestamps[s]
	}
	ts.mu.Unlock()

	ts.observeRead(err, time.Since(started))
	if err != nil {
		ts.log.WithError(err).Debugf("Reading index %d", index)
		return value, stamp, fmt.Errorf("reading index %d: %w", index, err)
	}
	return value, stamp, nil
}

// NewestIndex returns the index of the newest element, waiting up to the
// default timeout if the series is empty.
func (ts *Timeseries[T]) NewestIndex() (Index, error) {
	entry, err := ts.newestEntry()
	return entry.Index, err
}

// NewestElement returns a copy of the newest element, waiting up to the
// default timeout if the series is empty.
func (ts *Timeseries[T]) NewestElement() (T, error) {
	entry, err := ts.newestEntry()
	return entry.Value, err
}

func (ts *Timeseries[T]) newestEntry() (Entry[T], error) {
	var entry Entry[T]
	started := time.Now()

	ts.mu.Lock()
	err := ts.waitFor(context.Background(), func() bool { return !ts.empty }, ts.defaultTimeout)
	if err == nil {
		s := ts.slot(ts.newest)
		entry = Entry[T]{Index: ts.newest, Value: ts.values[s], Timestamp: ts.timestamps[s]}
	}
	ts.mu.Unlock()

	ts.observeRead(err, time.Since(started))
	if err != nil {
		ts.log.WithError(err).Debug("Waiting for first element")
		return entry, fmt.Errorf("reading newest element: %w", err)
	}
	return entry, nil
}

func (ts *Timeseries[T]) observeRead(err error, waited time.Duration) {
	if ts.observer != nil {
		ts.observer.ObserveRead(OutcomeOf(err), waited)
	}
}

// Length returns the number of retained elements.
func (ts *Timeseries[T]) Length() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lengthLocked()
}

func (ts *Timeseries[T]) Capacity() int {
	return ts.capacity
}

// Bounds returns the oldest and newest retained indices. ok is false while
// the series is empty.
func (ts *Timeseries[T]) Bounds() (oldest, newest Index, ok bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.empty {
		return 0, 0, false
	}
	return ts.oldest, ts.newest, true
}

// Snapshot returns a copy of all retained entries, oldest first.
func (ts *Timeseries[T]) Snapshot() []Entry[T] {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	entries := make([]Entry[T], 0, ts.lengthLocked())
	if ts.empty {
		return entries
	}
	for i := ts.oldest; i <= ts.newest; i++ {
		s := ts.slot(i)
		entries = append(entries, Entry[T]{Index: i, Value: ts.values[s], Timestamp: ts.timestamps[s]})
	}
	return entries
}

// Tag records index as seen, see HasChangedSinceTag.
func (ts *Timeseries[T]) Tag(index Index) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tagged = index
}

// HasChangedSinceTag reports whether the newest index is past the last
// tagged index. It never blocks.
func (ts *Timeseries[T]) HasChangedSinceTag() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return !ts.empty && ts.newest > ts.tagged
}

// Close wakes every blocked reader with ErrCancelled. Retained elements stay
// readable, waits for missing ones fail immediately and later appends are
// dropped.
func (ts *Timeseries[T]) Close() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.closed = true
	ts.cond.Broadcast()
}
