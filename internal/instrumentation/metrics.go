package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the gateway's metric instruments.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth flow
	AuthorizationStarted metric.Int64Counter
	CallbackProcessed    metric.Int64Counter
	CSRFRejected         metric.Int64Counter
	ExchangeFailed       metric.Int64Counter

	// Sessions
	SessionsCreated metric.Int64Counter
	SessionsRemoved metric.Int64Counter
	SessionsActive  metric.Int64ObservableGauge
	StatesPending   metric.Int64ObservableGauge

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	CleanupRemoved           metric.Int64Counter

	// Security
	RateLimitExceeded metric.Int64Counter
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	flowMeter := inst.Meter("flow")
	storageMeter := inst.Meter("storage")
	securityMeter := inst.Meter("security")

	var err error

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"mailgate.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"mailgate.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.AuthorizationStarted, err = flowMeter.Int64Counter(
		"mailgate.authorization.started",
		metric.WithDescription("Number of authorization flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.started counter: %w", err)
	}

	m.CallbackProcessed, err = flowMeter.Int64Counter(
		"mailgate.callback.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.processed counter: %w", err)
	}

	m.CSRFRejected, err = flowMeter.Int64Counter(
		"mailgate.csrf.rejected",
		metric.WithDescription("Number of callbacks rejected for an invalid or expired state token"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create csrf.rejected counter: %w", err)
	}

	m.ExchangeFailed, err = flowMeter.Int64Counter(
		"mailgate.exchange.failed",
		metric.WithDescription("Number of failed authorization-code exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.failed counter: %w", err)
	}

	m.SessionsCreated, err = flowMeter.Int64Counter(
		"mailgate.sessions.created",
		metric.WithDescription("Number of sessions created"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.created counter: %w", err)
	}

	m.SessionsRemoved, err = flowMeter.Int64Counter(
		"mailgate.sessions.removed",
		metric.WithDescription("Number of sessions removed, by reason"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.removed counter: %w", err)
	}

	m.SessionsActive, err = storageMeter.Int64ObservableGauge(
		"mailgate.sessions.active",
		metric.WithDescription("Current number of sessions in the store"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.active gauge: %w", err)
	}

	m.StatesPending, err = storageMeter.Int64ObservableGauge(
		"mailgate.states.pending",
		metric.WithDescription("Current number of unconsumed CSRF states"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create states.pending gauge: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"mailgate.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"mailgate.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.CleanupRemoved, err = storageMeter.Int64Counter(
		"mailgate.cleanup.removed",
		metric.WithDescription("Entries removed by the cleanup sweep, by kind"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cleanup.removed counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"mailgate.ratelimit.exceeded",
		metric.WithDescription("Requests rejected by rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, attrs)
}

// RecordAuthorizationStarted records the start of an authorization flow.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, provider string) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
	))
}

// RecordCallbackProcessed records a provider callback and its outcome.
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, provider string, success bool) {
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.Bool(AttrSuccess, success),
	))
}

// RecordCSRFRejected records a rejected state token. The reason is the
// internal distinction ("invalid" or "expired") that the HTTP boundary
// collapses.
func (m *Metrics) RecordCSRFRejected(ctx context.Context, reason string) {
	m.CSRFRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, reason),
	))
}

// RecordExchangeFailed records a failed code exchange.
func (m *Metrics) RecordExchangeFailed(ctx context.Context, provider string) {
	m.ExchangeFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
	))
}

// RecordSessionCreated records a newly created session.
func (m *Metrics) RecordSessionCreated(ctx context.Context, provider string) {
	m.SessionsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
	))
}

// RecordSessionRemoved records a removed session. Reason is one of
// "disconnect", "expired", "cleanup".
func (m *Metrics) RecordSessionRemoved(ctx context.Context, reason string) {
	m.SessionsRemoved.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, reason),
	))
}

// RecordStorageOperation records one storage operation with result and
// duration.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageResult, result),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, durationMs, attrs)
}

// RecordCleanup records entries removed by one cleanup sweep.
func (m *Metrics) RecordCleanup(ctx context.Context, kind string, removed int64) {
	if removed == 0 {
		return
	}
	m.CleanupRemoved.Add(ctx, removed, metric.WithAttributes(
		attribute.String(AttrKind, kind),
	))
}

// RecordRateLimitExceeded records a request rejected by rate limiting.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrHTTPEndpoint, endpoint),
	))
}
