package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ConsumerHook wraps every handling attempt. An error from BeforeHandle fails
// the attempt without calling the handler. AfterHandle runs once per attempt
// that passed BeforeHandle, panics included. OnError runs once per message,
// after the last failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// HookFuncs is a ConsumerHook built from optional funcs. The zero value does
// nothing.
type HookFuncs struct {
	Before func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	After  func(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	Err    func(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// Chain runs hooks in order for BeforeHandle and in reverse for AfterHandle.
// A failing BeforeHandle stops the chain.
func Chain(hooks ...ConsumerHook) ConsumerHook { return chain(hooks) }

type chain []ConsumerHook

func (ch chain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	var err error
	for _, h := range ch {
		if ctx, km, data, err = h.BeforeHandle(ctx, topic, km, data); err != nil {
			return ctx, km, data, err
		}
	}
	return ctx, km, data, nil
}

func (ch chain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(ch) - 1; i >= 0; i-- {
		ch[i].AfterHandle(ctx, topic, km, data, err)
	}
}

func (ch chain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range ch {
		h.OnError(ctx, topic, km, data, err)
	}
}

type traceKey struct{}

// TraceHook puts the trace_id header into the handler context and wraps each
// attempt in a consumer span.
func TraceHook() ConsumerHook {
	tracer := otel.Tracer("riskgate/kafka")
	return HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = WithTraceID(ctx, ExtractTraceID(km))
			ctx, _ = tracer.Start(ctx, "consume "+topic,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.destination.name", topic),
					attribute.Int("messaging.kafka.partition", km.Partition),
					attribute.Int64("messaging.kafka.offset", km.Offset),
				))
			return ctx, km, data, nil
		},
		After: func(ctx context.Context, _ string, _ kafka.Message, _ []byte, err error) {
			span := trace.SpanFromContext(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		},
	}
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the id stored by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// ExtractTraceID reads the trace header of km.
func ExtractTraceID(km kafka.Message) string {
	for _, h := range km.Headers {
		if h.Key == TraceHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}
