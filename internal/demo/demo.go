// Package demo walks through a time series shared by a producer and two
// readers: a live printer following every new element and a printer waiting
// for one element in the future. After each batch the full content of the
// series is printed.
package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rttools/rttools/internal/instrumentation/tracing"
	"github.com/rttools/rttools/pkg/thread"
	"github.com/rttools/rttools/pkg/timer"
	"github.com/rttools/rttools/pkg/timeseries"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	timestampLayout = "15:04:05.000"
	tracerName      = "rttools/demo"
)

type Item struct {
	D float64
	I int
}

type Config struct {
	// Items appended per iteration.
	Items int
	// Frequency of the producer in Hz.
	Frequency float64
	// Iterations of the producer.
	Iterations int
	// WaitForIndex is the index the future printer waits for.
	WaitForIndex timeseries.Index
	// Timeout bounds each read of the live printer. Zero waits forever.
	Timeout time.Duration
}

type Demo struct {
	series  *timeseries.Timeseries[Item]
	cfg     Config
	spawner thread.Spawner
	log     logrus.FieldLogger

	outMu sync.Mutex
	out   io.Writer
}

func New(log logrus.FieldLogger, series *timeseries.Timeseries[Item], cfg Config, spawner thread.Spawner, out io.Writer) *Demo {
	if cfg.Timeout == 0 {
		cfg.Timeout = timeseries.Forever
	}
	return &Demo{
		series:  series,
		cfg:     cfg,
		spawner: spawner,
		log:     log,
		out:     out,
	}
}

func (d *Demo) printf(format string, args ...any) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintf(d.out, format, args...)
}

// Run produces cfg.Iterations batches and closes the series when done, which
// releases both printers. Both printers have exited when Run returns.
func (d *Demo) Run(ctx context.Context) error {
	if d.cfg.Frequency <= 0 {
		return errors.New("frequency must be greater than 0")
	}
	defer d.series.Close()

	readersCtx, stopReaders := context.WithCancel(ctx)
	defer stopReaders()

	live, err := d.spawner.Spawn(readersCtx, "live printer", d.livePrint)
	if err != nil {
		return fmt.Errorf("starting live printer: %w", err)
	}
	future, err := d.spawner.Spawn(readersCtx, "future printer", d.futurePrint)
	if err != nil {
		stopReaders()
		d.series.Close()
		live.Join()
		return fmt.Errorf("starting future printer: %w", err)
	}
	defer func() {
		stopReaders()
		d.series.Close()
		thread.JoinAll(live, future)
	}()

	periods, err := timer.New(d.log, "producer", d.cfg.Items)
	if err != nil {
		return err
	}

	for iteration := 0; iteration < d.cfg.Iterations && ctx.Err() == nil; iteration++ {
		if err := d.iterate(ctx, iteration, periods); err != nil {
			return err
		}
	}
	periods.PrintStatistics()
	return nil
}

func (d *Demo) iterate(ctx context.Context, iteration int, periods *timer.Timer) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "demoIteration",
		trace.WithAttributes(attribute.Int("iteration", iteration), attribute.Int("items", d.cfg.Items)))
	defer span.End()

	d.printf("\n---- iteration %d ----\n\n", iteration)
	if err := d.produce(ctx, iteration, periods); err != nil {
		span.RecordError(err)
		return err
	}
	d.printContent()
	return nil
}

func (d *Demo) produce(ctx context.Context, iteration int, periods *timer.Timer) error {
	interval := time.Duration(float64(time.Second) / d.cfg.Frequency)
	written := 0
	producer := thread.NewPeriodic(d.log, fmt.Sprintf("producer-%d", iteration), interval, func(ctx context.Context) bool {
		periods.TacTic()
		item := Item{D: float64(written), I: written}
		d.series.Append(item)
		d.printf("write:\t%v\t%d\n", item.D, item.I)
		written++
		return written < d.cfg.Items
	}).WithSpawner(d.spawner)

	if err := producer.Start(ctx); err != nil {
		return fmt.Errorf("starting producer: %w", err)
	}
	producer.Wait()
	return nil
}

func (d *Demo) livePrint(ctx context.Context) {
	var index timeseries.Index
	follow := false
	for ctx.Err() == nil {
		if !follow {
			newest, err := d.series.NewestIndex()
			if errors.Is(err, timeseries.ErrCancelled) {
				return
			}
			if err != nil {
				continue
			}
			index, follow = newest, true
		}

		item, err := d.series.Get(index, d.cfg.Timeout)
		switch {
		case err == nil:
			d.printf("\tread:\t(index %d) %v\t%d\n", index, item.D, item.I)
			index++
		case errors.Is(err, timeseries.ErrStaleIndex):
			d.log.Debugf("Live printer fell behind at index %d", index)
			follow = false
		case errors.Is(err, timeseries.ErrCancelled):
			return
		}
	}
}

func (d *Demo) futurePrint(ctx context.Context) {
	_, ts, err := d.series.GetWithTimestamp(d.cfg.WaitForIndex, timeseries.Forever)
	if err != nil {
		d.log.WithError(err).Debugf("Future printer gave up on index %d", d.cfg.WaitForIndex)
		return
	}
	d.printf("\n**** received %d at time %s ****\n\n", d.cfg.WaitForIndex, ts.Format(timestampLayout))
}

func (d *Demo) printContent() {
	entries := d.series.Snapshot()

	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprint(d.out, "\n\t\ttime series content:\n")
	if len(entries) == 0 {
		fmt.Fprint(d.out, "\n(empty)\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(d.out, "\t\t%d\t%s\t|\t%v\t%d\n", e.Index, e.Timestamp.Format(timestampLayout), e.Value.D, e.Value.I)
	}
	fmt.Fprintln(d.out)
}
