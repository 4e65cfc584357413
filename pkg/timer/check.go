package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Check verifies that a loop keeps up with a target frequency. Every Tick
// closes a period; a period is slow when its instantaneous frequency drops
// below tolerance * target.
type Check struct {
	target    float64
	tolerance float64
	clock     clock.PassiveClock

	mu          sync.Mutex
	first, last time.Time
	ticks       int
	slow        int
	worstPeriod time.Duration
}

type CheckOption func(*Check)

// WithCheckClock sets the clock ticks are stamped with.
func WithCheckClock(c clock.PassiveClock) CheckOption {
	return func(check *Check) {
		check.clock = c
	}
}

// NewCheck returns a check for the target frequency in Hz. tolerance is in
// (0, 1].
func NewCheck(target, tolerance float64, opts ...CheckOption) (*Check, error) {
	if target <= 0 {
		return nil, errors.New("target frequency must be greater than 0")
	}
	if tolerance <= 0 || tolerance > 1 {
		return nil, fmt.Errorf("tolerance must be in (0, 1], got %v", tolerance)
	}
	c := &Check{
		target:    target,
		tolerance: tolerance,
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Check) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.ticks++
	if c.ticks == 1 {
		c.first = now
		c.last = now
		return
	}
	period := now.Sub(c.last)
	c.last = now
	if period > c.worstPeriod {
		c.worstPeriod = period
	}
	if period > c.slowestAllowed() {
		c.slow++
	}
}

func (c *Check) slowestAllowed() time.Duration {
	return time.Duration(float64(time.Second) / (c.target * c.tolerance))
}

// Report is a snapshot of a Check.
type Report struct {
	TargetFrequency  float64
	Ticks            int
	AverageFrequency float64
	WorstFrequency   float64
	WorstPeriod      time.Duration
	SlowPeriods      int
}

// RealTime reports whether no period was slow.
func (r Report) RealTime() bool {
	return r.Ticks > 1 && r.SlowPeriods == 0
}

func (r Report) String() string {
	return fmt.Sprintf("target=%s ticks=%s average=%s worst=%s (period %v) slow=%d",
		humanize.SIWithDigits(r.TargetFrequency, 2, "Hz"),
		humanize.Comma(int64(r.Ticks)),
		humanize.SIWithDigits(r.AverageFrequency, 2, "Hz"),
		humanize.SIWithDigits(r.WorstFrequency, 2, "Hz"),
		r.WorstPeriod,
		r.SlowPeriods)
}

func (c *Check) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := Report{
		TargetFrequency: c.target,
		Ticks:           c.ticks,
		WorstPeriod:     c.worstPeriod,
		SlowPeriods:     c.slow,
	}
	if elapsed := c.last.Sub(c.first); c.ticks > 1 && elapsed > 0 {
		r.AverageFrequency = float64(c.ticks-1) / elapsed.Seconds()
	}
	if c.worstPeriod > 0 {
		r.WorstFrequency = 1 / c.worstPeriod.Seconds()
	}
	return r
}

// Print logs the report, as a warning if the loop missed its target.
func (c *Check) Print(log logrus.FieldLogger) {
	r := c.Report()
	entry := log.WithFields(logrus.Fields{
		"ticks": r.Ticks,
		"slow":  r.SlowPeriods,
	})
	if r.RealTime() {
		entry.Infof("Realtime check passed: %s", r)
		return
	}
	entry.Warnf("Realtime check failed: %s", r)
}
