package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rttools/rttools/internal/config"
	"github.com/rttools/rttools/internal/demo"
	"github.com/rttools/rttools/internal/instrumentation/metrics"
	"github.com/rttools/rttools/internal/instrumentation/metrics/series"
	"github.com/rttools/rttools/internal/instrumentation/pprof"
	"github.com/rttools/rttools/internal/instrumentation/tracing"
	"github.com/rttools/rttools/pkg/cancel"
	rtlog "github.com/rttools/rttools/pkg/log"
	"github.com/rttools/rttools/pkg/shutdown"
	"github.com/rttools/rttools/pkg/timeseries"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	demoSeriesName     = "demo"
	tracerFlushTimeout = 5 * time.Second
)

type DemoOptions struct {
	GlobalOptions

	Items        int
	Frequency    float64
	Iterations   int
	WaitForIndex int64
	Backend      string
	Metrics      bool
	Pprof        bool

	out io.Writer
}

func DefaultDemoOptions() *DemoOptions {
	defaults := config.NewDefault()
	return &DemoOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Items:         defaults.Demo.Items,
		Frequency:     defaults.Demo.Frequency,
		Iterations:    defaults.Demo.Iterations,
		WaitForIndex:  defaults.Demo.WaitForIndex,
		Backend:       defaults.Thread.Backend,
		out:           os.Stdout,
	}
}

func NewCmdDemo() *cobra.Command {
	o := DefaultDemoOptions()
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Append items to a time series while printers read it live and from the future.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *DemoOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.IntVar(&o.Items, "items", o.Items, "Items appended per iteration.")
	fs.Float64Var(&o.Frequency, "frequency", o.Frequency, "Producer frequency in Hz.")
	fs.IntVar(&o.Iterations, "iterations", o.Iterations, "Number of iterations.")
	fs.Int64Var(&o.WaitForIndex, "wait-for", o.WaitForIndex, "Offset from the start index of the element the future printer waits for.")
	fs.StringVar(&o.Backend, "backend", o.Backend, fmt.Sprintf("Thread backend. One of: (%s, %s, %s).", config.BackendGoroutine, config.BackendLocked, config.BackendRealTime))
	fs.BoolVar(&o.Metrics, "metrics", o.Metrics, "Serve Prometheus metrics while the demo runs.")
	fs.BoolVar(&o.Pprof, "pprof", o.Pprof, "Serve runtime profiles on localhost while the demo runs.")
}

// Complete loads the configuration; flags set on the command line win over
// the file.
func (o *DemoOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	fs := cmd.Flags()
	d := o.config.Demo
	if fs.Changed("items") {
		d.Items = o.Items
	}
	if fs.Changed("frequency") {
		d.Frequency = o.Frequency
	}
	if fs.Changed("iterations") {
		d.Iterations = o.Iterations
	}
	if fs.Changed("wait-for") {
		d.WaitForIndex = o.WaitForIndex
	}
	if fs.Changed("backend") {
		o.config.Thread.Backend = o.Backend
	}
	if fs.Changed("metrics") {
		o.config.Metrics.Enabled = o.Metrics
	}
	if fs.Changed("pprof") {
		o.config.Pprof.Enabled = o.Pprof
	}
	return nil
}

func (o *DemoOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *DemoOptions) Run(ctx context.Context, args []string) error {
	cfg := o.config
	log, closer, err := o.newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	shutdownTracer, err := tracing.InitTracer(log, cfg, "rttools-demo")
	if err != nil {
		return err
	}

	var collector *series.SeriesCollector
	if cfg.Metrics.Enabled {
		collector = series.NewSeriesCollector(log)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	manager := shutdown.NewManager(log).
		AddCleanup("tracer", shutdown.FlushFunc(tracerFlushTimeout, shutdownTracer))
	manager.AddWorker("demo", shutdown.WorkerFunc(func(ctx context.Context) error {
		// the demo ending stops the metrics server too
		defer stop()

		opts := []timeseries.Option{
			timeseries.WithName(demoSeriesName),
			timeseries.WithLogger(log),
			timeseries.WithStartIndex(cfg.Timeseries.StartIndex),
			timeseries.WithDefaultTimeout(time.Duration(cfg.Timeseries.DefaultTimeout)),
			timeseries.WithPollInterval(time.Duration(cfg.Timeseries.PollInterval)),
			timeseries.WithCancelToken(cancel.FromContext(ctx)),
		}
		if collector != nil {
			opts = append(opts, timeseries.WithObserver(collector.Observer(demoSeriesName)))
		}
		ts, err := timeseries.New[demo.Item](cfg.Timeseries.Capacity, opts...)
		if err != nil {
			return err
		}

		return demo.New(rtlog.ForComponent(log, "demo"), ts, demo.Config{
			Items:        cfg.Demo.Items,
			Frequency:    cfg.Demo.Frequency,
			Iterations:   cfg.Demo.Iterations,
			WaitForIndex: cfg.Timeseries.StartIndex + cfg.Demo.WaitForIndex,
			Timeout:      time.Duration(cfg.Timeseries.DefaultTimeout),
		}, cfg.Spawner(log), o.out).Run(ctx)
	}))
	if collector != nil {
		logDir, err := cfg.LogDir()
		if err != nil {
			return err
		}
		host := metrics.NewHostCollector(log, time.Duration(cfg.Metrics.HostSampleInterval), logDir)
		manager.AddWorker("host sampler", host)
		manager.AddWorker("metrics", tracing.NewScrapeServer(log, cfg.Metrics.Address, collector, host))
	}
	if cfg.Pprof.Enabled {
		manager.AddWorker("pprof", pprof.NewServer(log,
			pprof.WithPort(cfg.Pprof.Port),
			pprof.WithContentionProfiling(cfg.Pprof.ContentionRate)))
	}
	return manager.Run(runCtx)
}
