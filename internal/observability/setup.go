package observability

import (
	"context"
	"net/http"

	"github.com/honeynil/marketplace-tx/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	ServiceName  string
	LogLevel     string
	OTLPEndpoint string
}

// Setup installs logging, metrics and tracing and returns the tracer shutdown
// func together with the /metrics handler.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, http.Handler) {
	observability.InitLogger(opts.LogLevel)
	observability.InitMetrics()
	tracerShutdown := observability.InitTracing(ctx, opts.ServiceName, opts.OTLPEndpoint)
	return tracerShutdown, promhttp.Handler()
}
