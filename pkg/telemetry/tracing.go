package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const employeeIDKey contextKey = "employeeId"

// InitTracer installs the global tracer provider and propagator. Spans are
// batched to the OTLP collector at endpoint, or printed to stdout when
// endpoint is empty. The returned func flushes and stops the provider.
func InitTracer(serviceName, endpoint string) (func(context.Context) error, error) {
	ctx := context.Background()

	exporter, err := newExporter(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(endpoint))
}

// StartSpanFromSQSMessage continues the producer's trace for msg. The
// employee id found in the body, if any, is attached to the span and to
// the returned context.
func StartSpanFromSQSMessage(ctx context.Context, msg types.Message) (context.Context, trace.Span) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, attributeCarrier(msg.MessageAttributes))

	ctx, span := otel.Tracer("sqs-worker").Start(ctx, "process_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "aws_sqs"),
			attribute.String("messaging.message_id", aws.ToString(msg.MessageId)),
		),
	)

	var payload struct {
		EmployeeID string `json:"employeeId"`
	}
	if msg.Body != nil && json.Unmarshal([]byte(*msg.Body), &payload) == nil && payload.EmployeeID != "" {
		span.SetAttributes(attribute.String("app.employeeId", payload.EmployeeID))
		ctx = WithEmployeeID(ctx, payload.EmployeeID)
	}
	return ctx, span
}

// WithEmployeeID stores the employee id for spans started further down.
func WithEmployeeID(ctx context.Context, employeeID string) context.Context {
	return context.WithValue(ctx, employeeIDKey, employeeID)
}

func GetEmployeeIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(employeeIDKey).(string)
	return id
}

// InjectTraceContext returns SQS message attributes carrying the trace of ctx.
func InjectTraceContext(ctx context.Context) map[string]types.MessageAttributeValue {
	attrs := make(attributeCarrier)
	otel.GetTextMapPropagator().Inject(ctx, attrs)
	return attrs
}

// attributeCarrier adapts SQS message attributes to propagation.TextMapCarrier.
type attributeCarrier map[string]types.MessageAttributeValue

func (c attributeCarrier) Get(key string) string {
	return aws.ToString(c[key].StringValue)
}

func (c attributeCarrier) Set(key, value string) {
	c[key] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(value)}
}

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
