package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DataRecce/recce-sub014/pkg/server"
)

const defaultTracerName = "recce"

// OTelConfig configures the OpenTelemetry navigation middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer. Default: "recce".
	TracerName string

	// TracerProvider supplies the tracer. Nil means the global provider.
	TracerProvider trace.TracerProvider

	// Filter decides which navigations to trace, given the raw path as the
	// client sent it. Nil traces everything.
	Filter func(path string) bool

	// Attributes are constant attributes added to every span.
	Attributes []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry navigation middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider. The default is the global
// provider registered with otel.SetTracerProvider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithNavigationFilter sets a predicate over raw paths; navigations it
// rejects run untraced.
func WithNavigationFilter(filter func(path string) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithSpanAttributes adds constant attributes to every navigation span.
func WithSpanAttributes(attrs ...attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{TracerName: defaultTracerName}
}

// OpenTelemetry returns navigation middleware that wraps every pass through
// the pipeline in a span.
//
// Spans start under the provisional name "navigate" and are renamed to the
// matched route pattern ("navigate /lineage") once resolution has run, so
// names stay bounded by the route table rather than by raw client paths.
// Each span carries the canonical path, the matched slot, and the patch
// count; failed navigations record the error and set the span status.
//
// Configure the global tracer provider in main() before starting the
// server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	var tracer trace.Tracer
	if config.TracerProvider != nil {
		tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}

	return func(next server.NavigateFunc) server.NavigateFunc {
		return func(path string) *server.NavigateResult {
			if config.Filter != nil && !config.Filter(path) {
				return next(path)
			}

			// Navigation runs on the event loop with no inbound request
			// context, so spans are roots.
			_, span := tracer.Start(context.Background(), "navigate",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(config.Attributes...))
			defer span.End()

			res := next(path)

			span.SetName(spanName(res))
			span.SetAttributes(
				attribute.String("recce.path", res.Path),
				attribute.Bool("recce.matched", res.Match.Matched),
				attribute.String("recce.slot", res.Match.Slot),
				attribute.Int("recce.patch_count", len(res.Patches)),
			)
			if res.Suggestion != "" {
				span.SetAttributes(attribute.String("recce.suggestion", res.Suggestion))
			}
			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return res
		}
	}
}

// spanName names the span by route pattern to keep cardinality bounded.
func spanName(res *server.NavigateResult) string {
	if res.Match.Matched {
		return "navigate " + res.Match.Pattern
	}
	return "navigate unmatched"
}
