package thread

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestSpawners(t *testing.T) {
	for name, spawner := range map[string]Spawner{
		"goroutine": Goroutine{Log: newTestLogger()},
		"locked":    LockedThread{Log: newTestLogger()},
	} {
		t.Run(name, func(t *testing.T) {
			var ran atomic.Bool
			h, err := spawner.Spawn(context.Background(), "worker", func(ctx context.Context) {
				ran.Store(true)
			})
			require.NoError(t, err)
			h.Join()
			assert.True(t, ran.Load())
			assert.Equal(t, "worker", h.Name())
			assert.NotEmpty(t, h.ID())

			select {
			case <-h.Done():
			default:
				t.Fatal("done channel should be closed after join")
			}
		})
	}
}

func TestSpawn_PassesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Goroutine{}.Spawn(ctx, "waiter", func(ctx context.Context) {
		<-ctx.Done()
	})
	require.NoError(t, err)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("spawned function did not observe cancellation")
	}
}

func TestSpawnLocked_SetupFailure(t *testing.T) {
	setupErr := errors.New("setup failed")
	var ran atomic.Bool
	h, err := spawnLocked(context.Background(), newTestLogger(), "rt", "test", func() error {
		return setupErr
	}, func(ctx context.Context) {
		ran.Store(true)
	})
	assert.ErrorIs(t, err, setupErr)
	assert.Nil(t, h)
	assert.False(t, ran.Load())
}

func TestRealTime_Validate(t *testing.T) {
	assert.NoError(t, RealTime{Policy: PolicyFIFO, Priority: 80}.Validate())
	assert.NoError(t, RealTime{Policy: PolicyRoundRobin, Priority: MinPriority}.Validate())
	assert.Error(t, RealTime{Policy: "idle", Priority: 10}.Validate())
	assert.Error(t, RealTime{Policy: PolicyFIFO, Priority: 0}.Validate())
	assert.Error(t, RealTime{Policy: PolicyFIFO, Priority: 100}.Validate())

	_, err := RealTime{Policy: PolicyFIFO}.Spawn(context.Background(), "rt", func(context.Context) {})
	assert.Error(t, err)
}

func TestJoinAll(t *testing.T) {
	var count atomic.Int32
	var handles []*Handle
	for i := 0; i < 5; i++ {
		h, err := Goroutine{}.Spawn(context.Background(), "counter", func(context.Context) {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	JoinAll(append(handles, nil)...)
	assert.Equal(t, int32(5), count.Load())
}

func TestPeriodic_RunsUntilExecStops(t *testing.T) {
	var runs atomic.Int32
	p := NewPeriodic(newTestLogger(), "counter", time.Millisecond, func(ctx context.Context) bool {
		return runs.Add(1) < 5
	})
	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	assert.Equal(t, int32(5), runs.Load())
	assert.Equal(t, 5, p.Iterations())
	assert.False(t, p.LastRunStartedAt().IsZero())

	// stopping a finished thread is harmless
	p.Stop()
	p.Stop()
}

func TestPeriodic_Stop(t *testing.T) {
	p := NewPeriodic(newTestLogger(), "forever", 5*time.Millisecond, func(ctx context.Context) bool {
		return true
	})
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "second start must fail")

	time.Sleep(20 * time.Millisecond)
	p.Stop()
	iterations := p.Iterations()
	assert.Greater(t, iterations, 0)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, iterations, p.Iterations(), "no iterations after stop")
}

func TestPeriodic_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPeriodic(newTestLogger(), "ctx", time.Millisecond, func(ctx context.Context) bool {
		return true
	}).WithSpawner(LockedThread{})
	require.NoError(t, p.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic thread ignored context cancellation")
	}
}

func TestPeriodic_InvalidInterval(t *testing.T) {
	p := NewPeriodic(newTestLogger(), "bad", 0, func(context.Context) bool { return false })
	assert.Error(t, p.Start(context.Background()))
	p.Stop()
}
