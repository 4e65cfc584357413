package shutdown

import (
	"context"
	"time"

	"github.com/rttools/rttools/pkg/thread"
)

// WorkerFunc lets a plain function be registered with AddWorker.
type WorkerFunc func(context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker starts p when the manager runs and returns once p has
// finished, either because its function asked to stop or ctx ended.
func PeriodicWorker(p *thread.Periodic) Worker {
	return WorkerFunc(func(ctx context.Context) error {
		if err := p.Start(ctx); err != nil {
			return err
		}
		p.Wait()
		return nil
	})
}

// FlushFunc turns a flush that takes a context, such as a tracer provider
// shutdown, into a cleanup bounded by timeout.
func FlushFunc(timeout time.Duration, flush func(context.Context) error) CleanupFunc {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return flush(ctx)
	}
}
