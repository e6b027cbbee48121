// Package postgres implements the repositories on PostgreSQL via database/sql
// and lib/pq. Every method runs in its own span and feeds the repository metrics.
package postgres

import (
	"context"
	"time"

	"github.com/honeynil/marketplace-tx/internal/infrastructure/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// observe opens the span for a repository method. The returned func must be
// deferred with a pointer to the method's error.
func observe(ctx context.Context, tracer, method string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := otel.Tracer(tracer).Start(ctx, method, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(errp *error) {
		status := "success"
		if err := *errp; err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		span.End()
	}
}

type scanner interface {
	Scan(dest ...any) error
}
