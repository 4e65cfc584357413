package tracing

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rttools/rttools/internal/instrumentation/metrics"
	"github.com/sirupsen/logrus"
	"github.com/stoewer/go-strcase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const scrapeOperation = "metricsScrape"

// ScrapeServer is a shutdown worker exposing collectors to Prometheus. Each
// scrape is recorded as a "metrics-scrape" span.
type ScrapeServer struct {
	log        logrus.FieldLogger
	addr       string
	collectors []prometheus.Collector
}

func NewScrapeServer(log logrus.FieldLogger, addr string, collectors ...prometheus.Collector) *ScrapeServer {
	return &ScrapeServer{log: log, addr: addr, collectors: collectors}
}

func (s *ScrapeServer) Run(ctx context.Context) error {
	return metrics.NewMetricsServer(s.log, s.collectors...).Run(
		ctx,
		metrics.WithListenAddr(s.addr),
		metrics.WithHandlerWrapper(func(h http.Handler) http.Handler {
			return traceScrapes(h, len(s.collectors))
		}),
	)
}

func traceScrapes(h http.Handler, collectors int, opts ...otelhttp.Option) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithPublicEndpoint(),
		otelhttp.WithSpanOptions(trace.WithAttributes(attribute.Int("collectors", collectors))),
	}, opts...)
	return otelhttp.NewHandler(h, strcase.KebabCase(scrapeOperation), opts...)
}
