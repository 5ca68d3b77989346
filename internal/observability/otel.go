package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

// Span attributes shared by the HTTP layer and the chat services.
const (
	AttrConversationID   = attribute.Key("huddle.conversation_id")
	AttrMessageID        = attribute.Key("huddle.message_id")
	AttrMessageSeq       = attribute.Key("huddle.message_seq")
	AttrIdempotent       = attribute.Key("huddle.idempotent")
	AttrIdempotentReplay = attribute.Key("huddle.idempotent_replay")
)

// RequestAttrs builds the attributes for a request. Idempotency keys are
// client secrets in practice, so only their presence is recorded.
func RequestAttrs(conversationID string, idempotent bool) []attribute.KeyValue {
	var out []attribute.KeyValue
	if conversationID != "" {
		out = append(out, AttrConversationID.String(conversationID))
	}
	if idempotent {
		out = append(out, AttrIdempotent.Bool(true))
	}
	return out
}

// OtelConfig is filled from the app config (file, then OTEL_* env).
type OtelConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ServiceName string            `yaml:"-"`
	Environment string            `yaml:"-"`
	Version     string            `yaml:"version"`
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

func (c OtelConfig) sampler() sdktrace.Sampler {
	ratio := c.SampleRatio
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error
)

// InitOTel installs the global tracer provider once. With tracing disabled it
// returns nil and spans stay no-ops.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		if !cfg.Enabled {
			return
		}
		serviceName := strings.TrimSpace(cfg.ServiceName)
		if serviceName == "" {
			serviceName = "huddle"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		))
		if err != nil && log != nil {
			log.Warn("otel resource init failed (continuing)", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(cfg.sampler()),
			sdktrace.WithResource(res),
		}
		exporter, err := traceExporter(ctx, cfg)
		if err != nil {
			if log != nil {
				log.Warn("otel exporter init failed (continuing)", "error", err)
			}
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		if log != nil {
			endpoint := cfg.Endpoint
			if endpoint == "" {
				endpoint = "stdout"
			}
			log.Info("otel tracing initialized", "service", serviceName, "exporter", endpoint)
		}
	})
	return otelShutdown
}

// traceExporter ships spans over OTLP/HTTP, or pretty-prints them to stdout
// when no endpoint is configured.
func traceExporter(ctx context.Context, cfg OtelConfig) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

// ParseHeaders reads the OTEL_EXPORTER_OTLP_HEADERS form "k1=v1,k2=v2".
// Malformed pairs are skipped.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		headers[k] = v
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// Tracer returns the named tracer from the global provider. Before InitOTel
// runs, or when tracing is disabled, spans are no-ops.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("huddle/" + name)
}
