package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	defaultListenAddr = ":15690"
	metricsPath       = "/metrics"
)

const (
	httpGracefulShutdownTimeout = 5 * time.Second
	httpReadHeaderTimeout       = 2 * time.Second
	httpReadTimeout             = 5 * time.Second
	httpWriteTimeout            = 10 * time.Second
	httpIdleTimeout             = 60 * time.Second
)

// NamedCollector is a Prometheus collector that also exposes a consistent name
// used in logs.
type NamedCollector interface {
	prometheus.Collector
	MetricsName() string
}

type MetricsServer struct {
	log        logrus.FieldLogger
	collectors []prometheus.Collector
}

func NewMetricsServer(log logrus.FieldLogger, collectors ...prometheus.Collector) *MetricsServer {
	nonNil := make([]prometheus.Collector, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			nonNil = append(nonNil, c)
		}
	}
	return &MetricsServer{
		log:        log,
		collectors: nonNil,
	}
}

type runOptions struct {
	listenAddr string
	wrap       func(http.Handler) http.Handler
}

type RunOption func(*runOptions)

func WithListenAddr(addr string) RunOption {
	return func(o *runOptions) {
		o.listenAddr = addr
	}
}

// WithHandlerWrapper wraps the metrics handler, e.g. with auth or logging.
func WithHandlerWrapper(wrap func(http.Handler) http.Handler) RunOption {
	return func(o *runOptions) {
		o.wrap = wrap
	}
}

// Run serves the collectors on /metrics until ctx is cancelled.
func (m *MetricsServer) Run(ctx context.Context, opts ...RunOption) error {
	o := runOptions{listenAddr: defaultListenAddr}
	for _, opt := range opts {
		opt(&o)
	}

	handler, err := NewHandler(m.collectors...)
	if err != nil {
		return err
	}
	if o.wrap != nil {
		handler = o.wrap(handler)
	}
	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	srv := &http.Server{
		Addr:              o.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	go func() {
		<-ctx.Done()
		if m.log != nil {
			m.log.WithError(ctx.Err()).Info("Shutdown signal received")
		}
		ctxTimeout, cancel := context.WithTimeout(context.Background(), httpGracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctxTimeout); err != nil && m.log != nil {
			m.log.WithError(err).Warn("Metrics server shutdown error")
		}
	}()

	if m.log != nil {
		m.log.Infof("Serving metrics on %s%s", o.listenAddr, metricsPath)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewHandler registers the collectors in a dedicated registry and returns a
// handler exposing it.
func NewHandler(collectors ...prometheus.Collector) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			name := "collector"
			if named, ok := c.(NamedCollector); ok {
				name = named.MetricsName()
			}
			return nil, fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
