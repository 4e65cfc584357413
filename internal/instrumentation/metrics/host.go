package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rttools/rttools/pkg/shutdown"
	"github.com/rttools/rttools/pkg/thread"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// HostCollector exports the load of the machine the real-time loops run on:
// CPU and memory utilization, and the fill level of the filesystem holding
// diskPath (usually the log directory). Values are ratios in [0, 1].
type HostCollector struct {
	cpuGauge  prometheus.Gauge
	memGauge  prometheus.Gauge
	diskGauge prometheus.Gauge

	log      logrus.FieldLogger
	interval time.Duration
	diskPath string

	mu        sync.Mutex
	lastIdle  uint64
	lastTotal uint64
}

func NewHostCollector(log logrus.FieldLogger, interval time.Duration, diskPath string) *HostCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostCollector{
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rttools_host_cpu_utilization",
			Help: "Host CPU utilization",
		}),
		memGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rttools_host_memory_utilization",
			Help: "Host memory utilization",
		}),
		diskGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rttools_host_disk_utilization",
			Help: "Utilization of the filesystem holding the log directory",
		}),
		log:      log,
		interval: interval,
		diskPath: diskPath,
	}
}

func (c *HostCollector) MetricsName() string {
	return "host"
}

func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuGauge.Desc()
	ch <- c.memGauge.Desc()
	ch <- c.diskGauge.Desc()
}

func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- c.cpuGauge
	ch <- c.memGauge
	ch <- c.diskGauge
}

// Run samples the host every interval until ctx is cancelled.
func (c *HostCollector) Run(ctx context.Context) error {
	sampler := thread.NewPeriodic(c.log, "host sampler", c.interval, func(ctx context.Context) bool {
		c.Sample()
		return true
	})
	return shutdown.PeriodicWorker(sampler).Run(ctx)
}

// Sample takes one measurement. CPU utilization is computed between two
// samples, so the first one only primes it.
func (c *HostCollector) Sample() {
	c.sampleCPU()
	c.sampleMemory()
	c.sampleDisk()
}

func (c *HostCollector) sampleCPU() {
	stats, err := cpu.Get()
	if err != nil {
		c.log.WithError(err).Debug("Sampling CPU")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastTotal != 0 && stats.Total > c.lastTotal {
		deltaIdle := stats.Idle - c.lastIdle
		deltaTotal := stats.Total - c.lastTotal
		c.cpuGauge.Set(1.0 - float64(deltaIdle)/float64(deltaTotal))
	}
	c.lastIdle = stats.Idle
	c.lastTotal = stats.Total
}

func (c *HostCollector) sampleMemory() {
	stats, err := memory.Get()
	if err != nil || stats.Total == 0 {
		return
	}
	c.memGauge.Set(float64(stats.Used) / float64(stats.Total))
}

func (c *HostCollector) sampleDisk() {
	var stat unix.Statfs_t
	if err := unix.Statfs(c.diskPath, &stat); err != nil || stat.Blocks == 0 {
		return
	}
	c.diskGauge.Set(1.0 - float64(stat.Bfree)/float64(stat.Blocks))
}
