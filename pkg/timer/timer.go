package timer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rttools/rttools/pkg/timeseries"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Timer measures the periods of a loop and keeps the last N of them for
// statistics.
//
// Sample usage:
//
//	t, _ := timer.New(log, "control loop", 100)
//	for {
//	    step()
//	    t.TacTic()
//	}
//	t.PrintStatistics()
type Timer struct {
	name    string
	clock   clock.PassiveClock
	history *timeseries.Timeseries[time.Duration]
	log     logrus.FieldLogger

	mu      sync.Mutex
	started bool
	tic     time.Time
}

type Option func(*settings)

type settings struct {
	clock    clock.PassiveClock
	observer timeseries.Observer
}

// WithClock sets the clock periods are measured with.
func WithClock(c clock.PassiveClock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithObserver forwards the history series' appends and reads to observer.
func WithObserver(observer timeseries.Observer) Option {
	return func(s *settings) {
		s.observer = observer
	}
}

// New returns a timer remembering the last memory periods.
func New(log logrus.FieldLogger, name string, memory int, opts ...Option) (*Timer, error) {
	s := settings{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&s)
	}

	seriesOpts := []timeseries.Option{
		timeseries.WithName(name),
		timeseries.WithLogger(log),
		timeseries.WithClock(s.clock),
		timeseries.WithDefaultTimeout(0),
	}
	if s.observer != nil {
		seriesOpts = append(seriesOpts, timeseries.WithObserver(s.observer))
	}
	history, err := timeseries.New[time.Duration](memory, seriesOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating timer %q: %w", name, err)
	}
	return &Timer{
		name:    name,
		clock:   s.clock,
		history: history,
		log:     log.WithField("timer", name),
	}, nil
}

func (t *Timer) Name() string {
	return t.name
}

// Tic starts a period.
func (t *Timer) Tic() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tic = t.clock.Now()
	t.started = true
}

// Tac ends the current period, records and returns its length. Without a
// previous Tic nothing is recorded and zero is returned.
func (t *Timer) Tac() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tacLocked(t.clock.Now())
}

// TacTic ends the current period and starts the next one at the same instant.
// The first call only starts a period.
func (t *Timer) TacTic() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	period := t.tacLocked(now)
	t.tic = now
	t.started = true
	return period
}

func (t *Timer) tacLocked(now time.Time) time.Duration {
	if !t.started {
		return 0
	}
	period := now.Sub(t.tic)
	t.history.Append(period)
	return period
}

// Periods returns the remembered periods, oldest first.
func (t *Timer) Periods() []time.Duration {
	return lo.Map(t.history.Snapshot(), func(e timeseries.Entry[time.Duration], _ int) time.Duration {
		return e.Value
	})
}

// Stats summarizes the remembered periods.
type Stats struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("count=%s mean=%v stddev=%v min=%v max=%v", humanize.Comma(int64(s.Count)), s.Mean, s.StdDev, s.Min, s.Max)
}

func (t *Timer) Statistics() Stats {
	return computeStats(t.Periods())
}

func computeStats(periods []time.Duration) Stats {
	if len(periods) == 0 {
		return Stats{}
	}
	mean := float64(lo.Sum(periods)) / float64(len(periods))
	variance := lo.SumBy(periods, func(p time.Duration) float64 {
		d := float64(p) - mean
		return d * d
	}) / float64(len(periods))
	return Stats{
		Count:  len(periods),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(math.Sqrt(variance)),
		Min:    lo.Min(periods),
		Max:    lo.Max(periods),
	}
}

// PrintStatistics logs the current statistics at info level.
func (t *Timer) PrintStatistics() {
	s := t.Statistics()
	t.log.WithFields(logrus.Fields{
		"count":  s.Count,
		"mean":   s.Mean,
		"stddev": s.StdDev,
		"min":    s.Min,
		"max":    s.Max,
	}).Infof("Timer statistics: %s", s)
}
