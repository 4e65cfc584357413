package thread

//go:generate go run go.uber.org/mock/mockgen -source=spawner.go -destination=mock_spawner.go -package=thread

import (
	"context"
	"errors"
	"runtime"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrRealTimeUnsupported = errors.New("real-time scheduling is not supported on this platform")

// Spawner starts a function on its own thread of execution. Implementations
// differ in how that thread is set up (plain goroutine, goroutine locked to
// an OS thread, OS thread with a real-time scheduling policy).
type Spawner interface {
	Spawn(ctx context.Context, name string, fn func(context.Context)) (*Handle, error)
}

// Handle refers to a spawned function. Join waits for it to return.
type Handle struct {
	id   string
	name string
	done chan struct{}
}

func newHandle(name string) *Handle {
	return &Handle{
		id:   uuid.NewString(),
		name: name,
		done: make(chan struct{}),
	}
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Name() string {
	return h.name
}

// Join blocks until the spawned function has returned.
func (h *Handle) Join() {
	<-h.done
}

// Done is closed when the spawned function has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// JoinAll waits for every handle in order.
func JoinAll(handles ...*Handle) {
	for _, h := range handles {
		if h != nil {
			h.Join()
		}
	}
}

// Goroutine runs functions on plain goroutines.
type Goroutine struct {
	Log logrus.FieldLogger
}

func (g Goroutine) Spawn(ctx context.Context, name string, fn func(context.Context)) (*Handle, error) {
	h := newHandle(name)
	go func() {
		defer close(h.done)
		fn(ctx)
	}()
	logSpawned(g.Log, h, "goroutine")
	return h, nil
}

// LockedThread runs each function on a goroutine wired to its own OS thread
// for the whole call. The thread is discarded when the function returns.
type LockedThread struct {
	Log logrus.FieldLogger
}

func (l LockedThread) Spawn(ctx context.Context, name string, fn func(context.Context)) (*Handle, error) {
	return spawnLocked(ctx, l.Log, name, "locked", nil, fn)
}

// spawnLocked starts fn on a locked OS thread after running setup on that
// thread. If setup fails fn is not run and the error is returned.
func spawnLocked(ctx context.Context, log logrus.FieldLogger, name, backend string, setup func() error, fn func(context.Context)) (*Handle, error) {
	h := newHandle(name)
	ready := make(chan error, 1)
	go func() {
		defer close(h.done)
		// no UnlockOSThread: the thread exits with the goroutine so its
		// scheduling settings are never reused
		runtime.LockOSThread()
		if setup != nil {
			if err := setup(); err != nil {
				ready <- err
				return
			}
		}
		ready <- nil
		fn(ctx)
	}()
	if err := <-ready; err != nil {
		<-h.done
		return nil, err
	}
	logSpawned(log, h, backend)
	return h, nil
}

func logSpawned(log logrus.FieldLogger, h *Handle, backend string) {
	if log == nil {
		return
	}
	log.WithFields(logrus.Fields{
		"thread":  h.name,
		"id":      h.id,
		"backend": backend,
	}).Debug("Spawned thread")
}
