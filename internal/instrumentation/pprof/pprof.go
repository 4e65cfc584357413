package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultPort = 15689
	// /debug/pprof/profile and /debug/pprof/trace
	defaultCaptureCap = 10 * time.Second
)

const (
	httpGracefulShutdownTimeout = 5 * time.Second
	httpReadHeaderTimeout       = 2 * time.Second
	httpIdleTimeout             = 60 * time.Second
)

// Server exposes Go runtime profiles on loopback. With contention profiling
// on, the mutex and block profiles show time spent waiting on time series
// locks and condition variables.
type Server struct {
	log  logrus.FieldLogger
	opts options
}

type Option func(*options)

type options struct {
	port       int
	captureCap time.Duration
	contention int
}

// WithPort sets the TCP port. Only positive values are applied.
func WithPort(port int) Option {
	return func(o *options) {
		if port > 0 {
			o.port = port
		}
	}
}

// WithCaptureCap bounds the duration of CPU profiles and execution traces.
func WithCaptureCap(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.captureCap = d
		}
	}
}

// WithContentionProfiling samples one in rate mutex contention events and
// blocking events, for the lifetime of Run.
func WithContentionProfiling(rate int) Option {
	return func(o *options) {
		o.contention = rate
	}
}

func NewServer(log logrus.FieldLogger, opts ...Option) *Server {
	o := options{port: defaultPort, captureCap: defaultCaptureCap}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{log: log, opts: o}
}

// Handler returns the mux serving /debug/pprof/*.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/profile", capSeconds(pprof.Profile, s.opts.captureCap))
	mux.HandleFunc("/debug/pprof/trace", capSeconds(pprof.Trace, s.opts.captureCap))
	for _, name := range []string{"heap", "goroutine", "allocs", "threadcreate", "mutex", "block"} {
		mux.Handle("/debug/pprof/"+name, pprof.Handler(name))
	}
	return mux
}

// Run serves the profiles until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.opts.contention > 0 {
		previous := runtime.SetMutexProfileFraction(s.opts.contention)
		runtime.SetBlockProfileRate(s.opts.contention)
		defer func() {
			runtime.SetMutexProfileFraction(previous)
			runtime.SetBlockProfileRate(0)
		}()
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.opts.port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		WriteTimeout:      s.opts.captureCap + 5*time.Second,
		IdleTimeout:       httpIdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpGracefulShutdownTimeout)
		defer cancel()
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("pprof: server shutdown error")
		}
	}()

	s.log.Infof("pprof listening on http://%s/debug/pprof/", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// capSeconds rewrites a missing or too large "seconds" parameter to the cap.
func capSeconds(h http.HandlerFunc, capDur time.Duration) http.HandlerFunc {
	capS := max(int(capDur/time.Second), 1)
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if v, err := strconv.Atoi(q.Get("seconds")); err != nil || v <= 0 || v > capS {
			q.Set("seconds", strconv.Itoa(capS))
			r.URL.RawQuery = q.Encode()
		}
		h.ServeHTTP(w, r)
	}
}
