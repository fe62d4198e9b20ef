package store

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nainya/memsetup/internal/logger"
	"github.com/nainya/memsetup/internal/metrics"
	"github.com/nainya/memsetup/internal/telemetry"
)

type operationKey struct{}

func withOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

func operationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok {
		return op
	}
	return "unknown"
}

// instrumentedTransport records metrics, a span and a debug log line per round trip
type instrumentedTransport struct {
	next    http.RoundTripper
	metrics *metrics.Metrics
	log     *logger.Logger
}

func newInstrumentedTransport(next http.RoundTripper, m *metrics.Metrics, log *logger.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next, metrics: m, log: log}
}

// RoundTrip starts the span and timer. They are finished when the response
// body is closed, so durations include reading the body.
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	op := operationFrom(req.Context())

	ctx, span := telemetry.Tracer().Start(req.Context(), "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		),
	)

	start := time.Now()
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		t.finish(req, op, span, start, 0, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
	}
	code := resp.StatusCode
	resp.Body = &finishingBody{
		ReadCloser: resp.Body,
		finish: func(readErr error) {
			t.finish(req, op, span, start, code, readErr)
		},
	}
	return resp, nil
}

// finish records the outcome of one round trip and ends its span
func (t *instrumentedTransport) finish(req *http.Request, op string, span trace.Span, start time.Time, code int, err error) {
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if code >= 300 {
		status = "error"
	}
	span.End()

	if t.metrics != nil {
		t.metrics.RecordStoreRequest(op, status, duration)
	}
	t.log.LogStoreRequest(req.Method, req.URL.Path, code, duration, err)
}

// finishingBody calls finish once, on Close or on the first read error
type finishingBody struct {
	io.ReadCloser
	once   sync.Once
	finish func(error)
}

func (b *finishingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		b.once.Do(func() { b.finish(err) })
	}
	return n, err
}

func (b *finishingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() { b.finish(nil) })
	return err
}
