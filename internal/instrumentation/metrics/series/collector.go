package series

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rttools/rttools/pkg/timeseries"
	"github.com/sirupsen/logrus"
)

// SeriesCollector implements NamedCollector and gathers metrics for any
// number of time series, each one labelled by name.
type SeriesCollector struct {
	appendsCounter   *prometheus.CounterVec
	evictionsCounter *prometheus.CounterVec
	lengthGauge      *prometheus.GaugeVec
	readsCounter     *prometheus.CounterVec
	readWaitHist     *prometheus.HistogramVec

	log logrus.FieldLogger
}

// NewSeriesCollector creates a SeriesCollector.
func NewSeriesCollector(log logrus.FieldLogger) *SeriesCollector {
	collector := &SeriesCollector{
		appendsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rttools_timeseries_appends_total",
			Help: "Total number of elements appended",
		}, []string{"series"}),
		evictionsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rttools_timeseries_evictions_total",
			Help: "Total number of elements evicted because the series was full",
		}, []string{"series"}),
		lengthGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rttools_timeseries_length",
			Help: "Number of elements currently retained",
		}, []string{"series"}),
		readsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rttools_timeseries_reads_total",
			Help: "Total number of reads by outcome",
		}, []string{"series", "outcome"}), // ready, timeout, cancelled, stale
		readWaitHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rttools_timeseries_read_wait_seconds",
			Help:    "Histogram of time spent in reads, including blocking",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs .. ~42s
		}, []string{"series"}),
		log: log,
	}

	collector.log.Debug("Timeseries metrics collector initialized")
	return collector
}

func (c *SeriesCollector) MetricsName() string {
	return "timeseries"
}

func (c *SeriesCollector) Describe(ch chan<- *prometheus.Desc) {
	c.appendsCounter.Describe(ch)
	c.evictionsCounter.Describe(ch)
	c.lengthGauge.Describe(ch)
	c.readsCounter.Describe(ch)
	c.readWaitHist.Describe(ch)
}

func (c *SeriesCollector) Collect(ch chan<- prometheus.Metric) {
	c.appendsCounter.Collect(ch)
	c.evictionsCounter.Collect(ch)
	c.lengthGauge.Collect(ch)
	c.readsCounter.Collect(ch)
	c.readWaitHist.Collect(ch)
}

// Observer returns a timeseries.Observer recording into this collector under
// the given series name. Pass it with timeseries.WithObserver.
func (c *SeriesCollector) Observer(name string) timeseries.Observer {
	return &seriesObserver{
		appends:   c.appendsCounter.WithLabelValues(name),
		evictions: c.evictionsCounter.WithLabelValues(name),
		length:    c.lengthGauge.WithLabelValues(name),
		reads:     c.readsCounter.MustCurryWith(prometheus.Labels{"series": name}),
		readWait:  c.readWaitHist.WithLabelValues(name),
	}
}

// seriesObserver holds label-bound children so the hot path does no label
// lookups for appends.
type seriesObserver struct {
	appends   prometheus.Counter
	evictions prometheus.Counter
	length    prometheus.Gauge
	reads     *prometheus.CounterVec
	readWait  prometheus.Observer
}

func (o *seriesObserver) ObserveAppend(length int, evicted bool) {
	o.appends.Inc()
	if evicted {
		o.evictions.Inc()
	}
	o.length.Set(float64(length))
}

func (o *seriesObserver) ObserveRead(outcome timeseries.Outcome, waited time.Duration) {
	o.reads.WithLabelValues(string(outcome)).Inc()
	o.readWait.Observe(waited.Seconds())
}
