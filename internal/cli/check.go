package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rttools/rttools/internal/config"
	"github.com/rttools/rttools/internal/instrumentation/tracing"
	rtlog "github.com/rttools/rttools/pkg/log"
	"github.com/rttools/rttools/pkg/shutdown"
	"github.com/rttools/rttools/pkg/timer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
)

// periods kept for the timer statistics of a check
const checkTimerMemory = 1000

type CheckOptions struct {
	GlobalOptions

	Frequency  float64
	Tolerance  float64
	Ticks      int
	Period     time.Duration
	Backend    string
	FailOnMiss bool

	out io.Writer
}

func DefaultCheckOptions() *CheckOptions {
	defaults := config.NewDefault()
	return &CheckOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Frequency:     defaults.Check.Frequency,
		Tolerance:     defaults.Check.Tolerance,
		Ticks:         defaults.Check.Ticks,
		Period:        time.Duration(defaults.Check.Period),
		Backend:       defaults.Thread.Backend,
		out:           os.Stdout,
	}
}

func NewCmdCheck() *cobra.Command {
	o := DefaultCheckOptions()
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that a loop on the configured thread backend keeps its target frequency.",
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

func (o *CheckOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.Float64Var(&o.Frequency, "frequency", o.Frequency, "Target frequency in Hz.")
	fs.Float64Var(&o.Tolerance, "tolerance", o.Tolerance, "Fraction of the target frequency a period may drop to.")
	fs.IntVar(&o.Ticks, "ticks", o.Ticks, "Number of ticks.")
	fs.DurationVar(&o.Period, "period", o.Period, "Sleep between ticks.")
	fs.StringVar(&o.Backend, "backend", o.Backend, fmt.Sprintf("Thread backend. One of: (%s, %s, %s).", config.BackendGoroutine, config.BackendLocked, config.BackendRealTime))
	fs.BoolVar(&o.FailOnMiss, "fail-on-miss", o.FailOnMiss, "Exit with an error if any period was too slow.")
}

func (o *CheckOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	fs := cmd.Flags()
	c := o.config.Check
	if fs.Changed("frequency") {
		c.Frequency = o.Frequency
	}
	if fs.Changed("tolerance") {
		c.Tolerance = o.Tolerance
	}
	if fs.Changed("ticks") {
		c.Ticks = o.Ticks
	}
	if fs.Changed("period") {
		c.Period = config.Duration(o.Period)
	}
	if fs.Changed("backend") {
		o.config.Thread.Backend = o.Backend
	}
	return nil
}

func (o *CheckOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *CheckOptions) Run(ctx context.Context, args []string) error {
	cfg := o.config
	log, closer, err := o.newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	shutdownTracer, err := tracing.InitTracer(log, cfg, "rttools-check")
	if err != nil {
		return err
	}
	flushTracer := shutdown.FlushFunc(tracerFlushTimeout, shutdownTracer)
	defer func() {
		if err := flushTracer(); err != nil {
			log.WithError(err).Warn("Flushing traces")
		}
	}()

	check, err := timer.NewCheck(cfg.Check.Frequency, cfg.Check.Tolerance)
	if err != nil {
		return err
	}
	periods, err := timer.New(rtlog.ForComponent(log, "check"), "realtime check", min(cfg.Check.Ticks, checkTimerMemory))
	if err != nil {
		return err
	}

	period := time.Duration(cfg.Check.Period)
	h, err := cfg.Spawner(log).Spawn(ctx, "realtime check", func(ctx context.Context) {
		_, span := tracing.StartSpan(ctx, "rttools/check", "realtimeCheck")
		defer func() {
			r := check.Report()
			span.SetAttributes(
				attribute.String("backend", cfg.Thread.Backend),
				attribute.Int("ticks", r.Ticks),
				attribute.Int("slow_periods", r.SlowPeriods),
				attribute.Float64("average_frequency", r.AverageFrequency))
			span.End()
		}()
		for i := 0; i < cfg.Check.Ticks && ctx.Err() == nil; i++ {
			check.Tick()
			periods.TacTic()
			time.Sleep(period)
		}
	})
	if err != nil {
		return fmt.Errorf("spawning check thread on %s backend: %w", cfg.Thread.Backend, err)
	}
	h.Join()

	periods.PrintStatistics()
	check.Print(log)
	report := check.Report()
	fmt.Fprintln(o.out, report)
	if o.FailOnMiss && !report.RealTime() {
		return fmt.Errorf("%d of %d periods were slower than %v of %v Hz", report.SlowPeriods, report.Ticks-1, cfg.Check.Tolerance, cfg.Check.Frequency)
	}
	return nil
}
