package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer_ServeAndScrape_OK(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})
	counter.Inc()

	s := NewMetricsServer(newSilentLogger(), counter, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, WithListenAddr(addr))
	}()

	waitForReady(t, "http://"+addr+"/metrics")

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "test_counter_total 1")

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for server shutdown")
	}
}

func TestMetricsServer_HandlerWrapper_Applied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wrapper_probe",
		Help: "ensures wrapper executed",
	})
	g.Set(1)

	s := NewMetricsServer(newSilentLogger(), g)

	const hdrKey = "X-Test-Wrapper"
	wrap := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(hdrKey, "1")
			next.ServeHTTP(w, r)
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, WithListenAddr(addr), WithHandlerWrapper(wrap))
	}()

	waitForReady(t, "http://"+addr+"/metrics")

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "1", resp.Header.Get(hdrKey))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for server shutdown")
	}
}

func TestNewHandler_DuplicateCollector(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "dup"})
	_, err := NewHandler(c, c)
	assert.Error(t, err)
}

func TestNewHandler_Serves(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "served_gauge", Help: "served"})
	g.Set(3)
	handler, err := NewHandler(g)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "served_gauge 3"))
}

func waitForReady(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) //nolint:gosec
		if err == nil {
			// any HTTP response means the server is up; drain body
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("server did not become ready: %s", url)
}

func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newSilentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
