// Package shutdown runs a set of workers until they finish, one of them fails
// or the process receives a termination signal, and then runs the registered
// cleanups in reverse order.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Worker is anything that runs until its context is cancelled or its work is
// done.
type Worker interface {
	Run(context.Context) error
}

// CleanupFunc releases a resource once all workers stopped.
type CleanupFunc func() error

type Manager struct {
	workers   []namedWorker
	cleanups  []namedCleanup
	signals   []os.Signal
	forceStop func()
	timeout   time.Duration
	log       logrus.FieldLogger
}

type namedWorker struct {
	name   string
	worker Worker
}

type namedCleanup struct {
	name    string
	cleanup CleanupFunc
}

func NewManager(log logrus.FieldLogger) *Manager {
	return &Manager{
		signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT},
		log:     log,
	}
}

// AddWorker registers a worker. All workers start together when Run is called.
func (m *Manager) AddWorker(name string, worker Worker) *Manager {
	m.workers = append(m.workers, namedWorker{name: name, worker: worker})
	return m
}

// AddCleanup registers a cleanup. Cleanups run last registered first.
func (m *Manager) AddCleanup(name string, cleanup CleanupFunc) *Manager {
	m.cleanups = append(m.cleanups, namedCleanup{name: name, cleanup: cleanup})
	return m
}

// WithSignals replaces the signals that stop the workers.
func (m *Manager) WithSignals(signals ...os.Signal) *Manager {
	m.signals = signals
	return m
}

// WithForceStop sets a function called when a worker fails, to unblock
// workers that do not watch their context (e.g. closing a time series their
// readers are blocked on).
func (m *Manager) WithForceStop(forceStop func()) *Manager {
	m.forceStop = forceStop
	return m
}

// WithTimeout bounds the whole run.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.timeout = timeout
	return m
}

// Run starts the workers and blocks until all of them returned. A worker
// stopped by cancellation is not an error; any other failure cancels the
// remaining workers and is returned as a *WorkerError.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.workers) == 0 {
		return errors.New("no workers configured")
	}

	ctx, stopSignals := signal.NotifyContext(ctx, m.signals...)
	defer stopSignals()

	if m.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, m.timeout)
		defer cancelTimeout()
		m.log.Debugf("Run bounded to %v", m.timeout)
	}

	defer m.cleanup()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, w := range m.workers {
		group.Go(func() error {
			m.log.Debugf("Starting %s", w.name)
			err := w.worker.Run(groupCtx)
			switch {
			case err == nil:
				m.log.Debugf("%s finished", w.name)
				return nil
			case errors.Is(err, context.Canceled):
				return err
			default:
				return NewWorkerError(w.name, err)
			}
		})
	}

	err := group.Wait()
	switch {
	case err == nil:
		m.log.Debug("All workers finished")
		return nil
	case errors.Is(err, context.Canceled):
		m.log.Info("Workers stopped on shutdown signal")
		return nil
	default:
		m.log.WithError(err).Error("Worker failed")
		if m.forceStop != nil {
			m.forceStop()
		}
		return err
	}
}

func (m *Manager) cleanup() {
	for i := len(m.cleanups) - 1; i >= 0; i-- {
		c := m.cleanups[i]
		m.log.Debugf("Cleaning up %s", c.name)
		if err := c.cleanup(); err != nil {
			m.log.WithError(err).Errorf("Cleanup of %s failed", c.name)
		}
	}
}

// WorkerError identifies the worker that failed.
type WorkerError struct {
	WorkerName string
	Err        error
}

func NewWorkerError(workerName string, err error) *WorkerError {
	return &WorkerError{WorkerName: workerName, Err: err}
}

func (e *WorkerError) Error() string {
	return e.WorkerName + ": " + e.Err.Error()
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
