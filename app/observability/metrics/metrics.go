package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// AppMetrics holds the application's metric instruments. Constructed once in
// main and injected into the services that record them.
type AppMetrics struct {
	SignupsTotal           metric.Int64Counter
	LoginsTotal            metric.Int64Counter
	TokensIssuedTotal      metric.Int64Counter
	AuthFailuresTotal      metric.Int64Counter
	DbQueryDurationSeconds metric.Float64Histogram
}

// RecordDBQuery records one database query duration under the given operation
// label. Safe on a nil receiver, so repositories built without metrics skip it.
func (m *AppMetrics) RecordDBQuery(ctx context.Context, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)))
}

// InitProvider wires the prometheus exporter into the global otel meter
// provider and returns the /metrics handler to mount on the metrics listener.
func InitProvider() (http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return promhttp.Handler(), nil
}

// NewAppMetrics creates the instruments from the configured meter provider.
// With no provider installed (tests) the instruments are no-ops.
func NewAppMetrics() (*AppMetrics, error) {
	meter := otel.GetMeterProvider().Meter("contacts-api")
	m := &AppMetrics{}
	var err error

	m.SignupsTotal, err = meter.Int64Counter(
		"signups_total",
		metric.WithDescription("Total number of completed signups"),
	)
	if err != nil {
		return nil, fmt.Errorf("create signups_total: %w", err)
	}

	m.LoginsTotal, err = meter.Int64Counter(
		"logins_total",
		metric.WithDescription("Total number of successful logins"),
	)
	if err != nil {
		return nil, fmt.Errorf("create logins_total: %w", err)
	}

	m.TokensIssuedTotal, err = meter.Int64Counter(
		"tokens_issued_total",
		metric.WithDescription("Total number of tokens issued, by type"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tokens_issued_total: %w", err)
	}

	m.AuthFailuresTotal, err = meter.Int64Counter(
		"auth_failures_total",
		metric.WithDescription("Total number of rejected authentication attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth_failures_total: %w", err)
	}

	m.DbQueryDurationSeconds, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Duration of database queries in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration_seconds: %w", err)
	}

	return m, nil
}
