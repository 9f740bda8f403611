package tracing

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// AttrURLPath is set on server spans at start so samplers can see the path.
const AttrURLPath = attribute.Key("url.path")

type pathSampler struct {
	paths    map[string]struct{}
	fallback sdktrace.Sampler
}

// NewPathSampler records every span whose url.path is in paths and samples
// the rest at ratio.
func NewPathSampler(paths []string, ratio float64) sdktrace.Sampler {
	set := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if path = strings.TrimSpace(path); path != "" {
			set[path] = struct{}{}
		}
	}
	return pathSampler{paths: set, fallback: sdktrace.TraceIDRatioBased(ratio)}
}

func (s pathSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range p.Attributes {
		if attr.Key != AttrURLPath {
			continue
		}
		if _, ok := s.paths[attr.Value.AsString()]; ok {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
			}
		}
		break
	}
	return s.fallback.ShouldSample(p)
}

func (s pathSampler) Description() string {
	return "PathSampler{" + s.fallback.Description() + "}"
}
