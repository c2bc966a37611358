// Package tracking records OpenTelemetry metrics and spans for the HTTP client chain.
package tracking

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Instrumentation scope shared by the meter and the tracer
	meterName = "pushbricks/httpclient"

	// Metric names following OpenTelemetry HTTP client semantic conventions
	metricClientRequestDuration = "http.client.request.duration" // Histogram in seconds
	metricClientActiveRequests  = "http.client.active_requests"  // UpDownCounter

	// Client chain metrics (pushbricks-specific)
	metricClientAttempts    = "httpclient.attempts"    // Counter
	metricClientRetries     = "httpclient.retries"     // Counter
	metricClientSaturations = "httpclient.saturations" // Counter

	// Attribute keys per OTel semantic conventions
	attrHTTPMethod     = "http.request.method"
	attrHTTPStatusCode = "http.response.status_code"
	attrURLFull        = "url.full"
	attrErrorType      = "error.type"
	attrRetryAttempt   = "http.request.resend_count"

	// AttemptSpanName names the span wrapping one physical exchange.
	AttemptSpanName = "httpclient.attempt"
)

var (
	// Singleton meter initialization
	clientMeter   metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	// Metric instruments
	requestDuration   metric.Float64Histogram
	activeRequests    metric.Int64UpDownCounter
	attemptCounter    metric.Int64Counter
	retryCounter      metric.Int64Counter
	saturationCounter metric.Int64Counter
)

// logMetricError logs a metric initialization error to stderr.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize httpclient metric %s: %v\n", metricName, err)
	}
}

func initClientMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if clientMeter != nil {
		return
	}

	clientMeter = otel.Meter(meterName)

	var err error

	requestDuration, err = clientMeter.Float64Histogram(
		metricClientRequestDuration,
		metric.WithDescription("Duration of one physical HTTP exchange"),
		metric.WithUnit("s"),
	)
	logMetricError(metricClientRequestDuration, err)

	activeRequests, err = clientMeter.Int64UpDownCounter(
		metricClientActiveRequests,
		metric.WithDescription("Number of HTTP exchanges currently in flight"),
		metric.WithUnit("{request}"),
	)
	logMetricError(metricClientActiveRequests, err)

	attemptCounter, err = clientMeter.Int64Counter(
		metricClientAttempts,
		metric.WithDescription("Number of physical HTTP attempts"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricClientAttempts, err)

	retryCounter, err = clientMeter.Int64Counter(
		metricClientRetries,
		metric.WithDescription("Number of retries scheduled by the retryer"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricClientRetries, err)

	saturationCounter, err = clientMeter.Int64Counter(
		metricClientSaturations,
		metric.WithDescription("Number of attempts refused by the worker pool"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricClientSaturations, err)

	metricsInited = true
}

func ensureMeterInitialized() {
	meterOnce.Do(initClientMeter)
}

// AttemptResult describes the outcome of a physical exchange.
// StatusCode is zero when no response was received.
type AttemptResult struct {
	Method     string
	StatusCode int
	Duration   time.Duration
	ErrorType  string
}

// RecordAttempt records the attempt counter and duration histogram.
func RecordAttempt(ctx context.Context, result AttemptResult) {
	ensureMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrHTTPMethod, result.Method),
	}
	if result.StatusCode > 0 {
		attrs = append(attrs, attribute.Int(attrHTTPStatusCode, result.StatusCode))
	}
	if result.ErrorType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, result.ErrorType))
	}

	if attemptCounter != nil {
		attemptCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if requestDuration != nil {
		requestDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// AddInFlight moves the active request gauge by delta.
func AddInFlight(ctx context.Context, method string, delta int64) {
	ensureMeterInitialized()

	if activeRequests != nil {
		activeRequests.Add(ctx, delta, metric.WithAttributes(attribute.String(attrHTTPMethod, method)))
	}
}

// RecordRetry counts a scheduled retry. attempt is the 1-based retry number.
func RecordRetry(ctx context.Context, method string, attempt int, statusCode int) {
	ensureMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrHTTPMethod, method),
		attribute.Int(attrRetryAttempt, attempt),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int(attrHTTPStatusCode, statusCode))
	}

	if retryCounter != nil {
		retryCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordSaturation counts an attempt refused by the worker pool.
func RecordSaturation(ctx context.Context, method string) {
	ensureMeterInitialized()

	if saturationCounter != nil {
		saturationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrHTTPMethod, method)))
	}
}

// StartAttemptSpan starts the client span of one exchange from the global tracer provider.
func StartAttemptSpan(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return otel.Tracer(meterName).Start(ctx, AttemptSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrHTTPMethod, method),
			attribute.String(attrURLFull, url),
		),
	)
}

// EndAttemptSpan annotates the span with the status (when known) and error, then ends it.
func EndAttemptSpan(span trace.Span, statusCode int, err error) {
	if statusCode > 0 {
		span.SetAttributes(attribute.Int(attrHTTPStatusCode, statusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(attrErrorType, errorTypeLabel(statusCode, err)))
	}
	span.End()
}

func errorTypeLabel(statusCode int, err error) string {
	if statusCode > 0 {
		return strconv.Itoa(statusCode)
	}
	if err == nil {
		return ""
	}
	return "transport"
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	clientMeter = nil
	requestDuration = nil
	activeRequests = nil
	attemptCounter = nil
	retryCounter = nil
	saturationCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
