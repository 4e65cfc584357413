package shutdown

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_NoWorkers(t *testing.T) {
	log, _ := test.NewNullLogger()
	assert.Error(t, NewManager(log).Run(context.Background()))
}

func TestManager_WorkersFinishAndCleanupsRunInReverse(t *testing.T) {
	log, _ := test.NewNullLogger()
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	err := NewManager(log).
		AddWorker("a", WorkerFunc(func(ctx context.Context) error {
			record("worker")
			return nil
		})).
		AddCleanup("first", func() error {
			record("first")
			return nil
		}).
		AddCleanup("second", func() error {
			record("second")
			return errors.New("ignored")
		}).
		AddCleanup("third", FlushFunc(time.Second, func(ctx context.Context) error {
			record("flush")
			return nil
		})).
		Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"worker", "flush", "second", "first"}, order)
}

func TestManager_FailureCancelsOthers(t *testing.T) {
	log, _ := test.NewNullLogger()
	boom := errors.New("boom")
	forced := make(chan struct{})

	err := NewManager(log).
		AddWorker("failing", WorkerFunc(func(ctx context.Context) error {
			return boom
		})).
		AddWorker("blocking", WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})).
		WithForceStop(func() { close(forced) }).
		Run(context.Background())

	require.ErrorIs(t, err, boom)
	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "failing", workerErr.WorkerName)
	assert.Equal(t, "failing: boom", err.Error())

	select {
	case <-forced:
	default:
		t.Fatal("force stop was not called")
	}
}

func TestManager_ParentCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cleaned := false

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := NewManager(log).
		AddWorker("blocking", WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})).
		AddCleanup("flag", func() error {
			cleaned = true
			return nil
		}).
		Run(ctx)

	assert.NoError(t, err)
	assert.True(t, cleaned)
}

func TestManager_Signal(t *testing.T) {
	log, _ := test.NewNullLogger()
	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- NewManager(log).
			WithSignals(syscall.SIGUSR1).
			AddWorker("blocking", WorkerFunc(func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			})).
			Run(context.Background())
	}()

	<-started
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manager ignored the signal")
	}
}

func TestManager_Timeout(t *testing.T) {
	log, _ := test.NewNullLogger()
	err := NewManager(log).
		WithTimeout(10 * time.Millisecond).
		AddWorker("blocking", WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})).
		Run(context.Background())

	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
