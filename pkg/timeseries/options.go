package timeseries

import (
	"time"

	"github.com/rttools/rttools/pkg/cancel"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Forever makes an accessor wait without a time bound. Any negative duration
// has the same meaning.
const Forever time.Duration = -1

// DefaultPollInterval bounds how long a blocked reader may take to notice a
// cancelled token.
const DefaultPollInterval = time.Second

type options struct {
	name           string
	start          Index
	defaultTimeout time.Duration
	pollInterval   time.Duration
	token          *cancel.Token
	clock          clock.PassiveClock
	observer       Observer
	log            logrus.FieldLogger
}

func defaultOptions() options {
	return options{
		defaultTimeout: Forever,
		pollInterval:   DefaultPollInterval,
		clock:          clock.RealClock{},
		log:            logrus.StandardLogger(),
	}
}

// Option configures a Timeseries at construction.
type Option func(*options)

// WithName names the series in log fields and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithStartIndex sets the index given to the first appended element.
func WithStartIndex(start Index) Option {
	return func(o *options) {
		o.start = start
	}
}

// WithDefaultTimeout sets the timeout used by At, NewestIndex and
// NewestElement. Defaults to Forever.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.defaultTimeout = timeout
	}
}

// WithCancelToken makes every blocked reader give up with ErrCancelled at
// the next poll interval after the token is cancelled.
func WithCancelToken(token *cancel.Token) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithPollInterval sets the length of the wait slices after which a blocked
// reader re-checks the cancellation token.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
	}
}

// WithClock sets the clock used to timestamp appended elements.
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithObserver registers an Observer notified of appends and reads.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}
