package timeseries

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rttools/rttools/pkg/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slack absorbs scheduler latency in timing assertions
const slack = 100 * time.Millisecond

func TestGet_TimeoutBound(t *testing.T) {
	ts := MustNew[int](100)
	const timeout = 20 * time.Millisecond

	start := time.Now()
	v, err := ts.Get(101, timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))
	assert.Zero(t, v)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+slack)
}

func TestGet_TimeoutBoundWhileAppending(t *testing.T) {
	ts := MustNew[int](10)
	const timeout = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			ts.Append(i)
			time.Sleep(time.Millisecond)
		}
	}()

	// unrelated appends wake the reader but must not extend its deadline
	start := time.Now()
	_, err := ts.Get(1000, timeout)
	elapsed := time.Since(start)
	<-done

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+slack)
}

func TestNewestIndex_DefaultTimeout(t *testing.T) {
	const defaultTimeout = 30 * time.Millisecond
	ts := MustNew[int](100, WithDefaultTimeout(defaultTimeout))

	start := time.Now()
	_, err := ts.NewestIndex()
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, defaultTimeout)
	assert.Less(t, elapsed, defaultTimeout+slack)

	start = time.Now()
	_, err = ts.NewestElement()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), defaultTimeout)

	// At swallows the error and returns the zero value
	assert.Zero(t, ts.At(5))
}

func TestGet_ZeroTimeoutDoesNotBlock(t *testing.T) {
	ts := MustNew[int](3)
	start := time.Now()
	_, err := ts.Get(0, 0)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), slack)
}

func TestGet_BlockingFutureRead(t *testing.T) {
	ts := MustNew[int](20)
	const k = 3

	type result struct {
		value int
		err   error
	}
	results := make(map[Index]chan result)
	for _, index := range []Index{k, k + 5} {
		ch := make(chan result, 1)
		results[index] = ch
		go func(index Index) {
			v, err := ts.Get(index, 5*time.Second)
			ch <- result{v, err}
		}(index)
	}

	// give the readers time to block
	time.Sleep(20 * time.Millisecond)
	for i := 0; i <= k; i++ {
		ts.Append(i * 100)
	}

	select {
	case r := <-results[k]:
		require.NoError(t, r.err)
		assert.Equal(t, k*100, r.value)
	case <-time.After(time.Second):
		t.Fatal("reader for index k was not woken")
	}

	for i := k + 1; i <= k+5; i++ {
		ts.Append(i * 100)
	}
	select {
	case r := <-results[k+5]:
		require.NoError(t, r.err)
		assert.Equal(t, (k+5)*100, r.value)
	case <-time.After(time.Second):
		t.Fatal("reader for index k+5 was not woken")
	}
}

func TestNewestElement_WaitsForFirstAppend(t *testing.T) {
	ts := MustNew[string](4)

	got := make(chan string, 1)
	go func() {
		v, err := ts.NewestElement()
		if err != nil {
			got <- err.Error()
			return
		}
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	ts.Append("first")

	select {
	case v := <-got:
		assert.Equal(t, "first", v)
	case <-time.After(time.Second):
		t.Fatal("newest element reader was not woken")
	}
}

func TestGet_Cancellation(t *testing.T) {
	const (
		waiters      = 8
		pollInterval = 50 * time.Millisecond
	)
	token := cancel.NewToken()
	ts := MustNew[int](10, WithCancelToken(token), WithPollInterval(pollInterval))

	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			timeout := Forever
			if i%2 == 1 {
				timeout = time.Hour
			}
			_, errs[i] = ts.Get(Index(i), timeout)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	token.Cancel()
	wg.Wait()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, pollInterval+slack)
	for i, err := range errs {
		assert.ErrorIs(t, err, ErrCancelled, "waiter %d", i)
		assert.True(t, IsTimeout(err))
	}
}

func TestGet_CancellationDefaultPollInterval(t *testing.T) {
	token := cancel.NewToken()
	ts := MustNew[int](10, WithCancelToken(token))

	errCh := make(chan error, 1)
	go func() {
		_, err := ts.Get(0, Forever)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	token.Cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(DefaultPollInterval + 500*time.Millisecond):
		t.Fatal("cancellation was not noticed within one poll interval")
	}
}

func TestGet_CancelledTokenBeforeWait(t *testing.T) {
	token := cancel.NewToken()
	token.Cancel()
	ts := MustNew[int](3, WithCancelToken(token))

	_, err := ts.Get(0, Forever)
	assert.ErrorIs(t, err, ErrCancelled)

	ts.Append(7)
	v, err := ts.Get(0, Forever)
	require.NoError(t, err, "available data is returned even after cancellation")
	assert.Equal(t, 7, v)
}

func TestGetContext(t *testing.T) {
	t.Run("cancel wakes the reader promptly", func(t *testing.T) {
		ts := MustNew[int](3)
		ctx, cancelFn := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, err := ts.GetContext(ctx, 0)
			errCh <- err
		}()

		time.Sleep(10 * time.Millisecond)
		start := time.Now()
		cancelFn()
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrCancelled)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Less(t, time.Since(start), slack)
		case <-time.After(time.Second):
			t.Fatal("context cancellation did not wake the reader")
		}
	})

	t.Run("deadline bounds the wait", func(t *testing.T) {
		ts := MustNew[int](3)
		ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancelFn()

		start := time.Now()
		_, err := ts.GetContext(ctx, 0)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Less(t, time.Since(start), 30*time.Millisecond+slack)
	})

	t.Run("default timeout shorter than deadline wins", func(t *testing.T) {
		ts := MustNew[int](3, WithDefaultTimeout(20*time.Millisecond))
		ctx, cancelFn := context.WithTimeout(context.Background(), time.Hour)
		defer cancelFn()

		start := time.Now()
		_, err := ts.GetContext(ctx, 0)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 20*time.Millisecond+slack)
	})

	t.Run("value already present", func(t *testing.T) {
		ts := MustNew[int](3)
		ts.Append(9)
		v, err := ts.GetContext(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 9, v)
	})
}

func TestClose_WakesWaiters(t *testing.T) {
	ts := MustNew[int](3)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ts.Get(Index(i), Forever)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	ts.Close()
	wg.Wait()

	assert.Less(t, time.Since(start), slack)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrCancelled)
	}
}
