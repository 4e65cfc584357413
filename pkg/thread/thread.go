package thread

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Periodic invokes a function every interval on a thread created by its
// Spawner, until the function asks to stop, the context ends or Stop is called.
//
// Sample usage:
//
//	producer := thread.NewPeriodic(log, "producer", 100*time.Millisecond, func(ctx context.Context) bool {
//	    series.Append(read())
//	    return true
//	})
//	if err := producer.Start(ctx); err != nil {
//	    ...
//	}
//	defer producer.Stop()
type Periodic struct {
	log      logrus.FieldLogger
	exec     func(context.Context) bool
	name     string
	interval time.Duration
	spawner  Spawner

	mu               sync.Mutex
	handle           *Handle
	stop             chan struct{}
	iterations       int
	lastRunStartedAt time.Time
}

// NewPeriodic returns a stopped periodic thread. exec returns false to end the
// loop after the current iteration.
func NewPeriodic(log logrus.FieldLogger, name string, interval time.Duration, exec func(context.Context) bool) *Periodic {
	return &Periodic{
		log:      log,
		exec:     exec,
		name:     name,
		interval: interval,
		spawner:  Goroutine{Log: log},
	}
}

// WithSpawner selects the backend the loop runs on.
func (t *Periodic) WithSpawner(spawner Spawner) *Periodic {
	t.spawner = spawner
	return t
}

// Start spawns the loop. The first iteration runs immediately.
func (t *Periodic) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle != nil {
		return errors.New("periodic thread already started")
	}
	stop := make(chan struct{})
	h, err := t.spawner.Spawn(ctx, t.name, func(ctx context.Context) {
		t.loop(ctx, stop)
	})
	if err != nil {
		return err
	}
	t.handle = h
	t.stop = stop
	t.log.Infof("Started %s", t.name)
	return nil
}

// Stop ends the loop and waits for the current iteration to finish. It is a
// no-op if the thread was never started and safe to call more than once.
func (t *Periodic) Stop() {
	t.mu.Lock()
	h, stop := t.handle, t.stop
	t.stop = nil
	t.mu.Unlock()
	if h == nil {
		return
	}
	if stop != nil {
		t.log.Infof("Stopping %s", t.name)
		close(stop)
	}
	h.Join()
	t.log.Infof("Stopped %s", t.name)
}

// Wait blocks until the loop has ended on its own or through Stop.
func (t *Periodic) Wait() {
	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()
	if h != nil {
		h.Join()
	}
}

func (t *Periodic) Iterations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.iterations
}

func (t *Periodic) LastRunStartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRunStartedAt
}

func (t *Periodic) Name() string {
	return t.name
}

func (t *Periodic) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.mu.Lock()
		t.lastRunStartedAt = time.Now()
		t.iterations++
		t.mu.Unlock()
		if !t.exec(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
