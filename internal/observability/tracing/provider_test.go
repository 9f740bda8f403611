package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/webhooks/payment"),
		attribute.String("http.request.header.x-signature", "abc"),
		attribute.String("member.email", "a@example.com"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes: %+v", attrs)
	}
}

func TestSafeErrorFlattensWrappedErrors(t *testing.T) {
	inner := errors.New("connection refused")
	safe := SafeError(fmt.Errorf("insert webhook event: %w", inner))
	if safe == nil || safe.Error() != "insert webhook event: connection refused" {
		t.Fatalf("unexpected safe error: %v", safe)
	}
	if errors.Is(safe, inner) {
		t.Fatalf("safe error should not unwrap to the original")
	}
	if SafeError(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	if _, err := newExporter("carrier-pigeon", ""); err == nil {
		t.Fatalf("expected error for unsupported protocol")
	}
}

func TestPathSamplerKeepsPaymentRoutes(t *testing.T) {
	sampler := NewPathSampler([]string{"/webhooks/payment"}, 0)
	params := func(path string) sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{0x01},
			Name:          "HTTP POST",
			Kind:          trace.SpanKindServer,
			Attributes:    []attribute.KeyValue{AttrURLPath.String(path)},
		}
	}

	if got := sampler.ShouldSample(params("/webhooks/payment")).Decision; got != sdktrace.RecordAndSample {
		t.Fatalf("webhook span should be sampled, got %v", got)
	}
	if got := sampler.ShouldSample(params("/health")).Decision; got != sdktrace.Drop {
		t.Fatalf("other spans follow the ratio, got %v", got)
	}
}
