package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier_GetSet(t *testing.T) {
	headers := []kafka.Header{{Key: "source", Value: []byte("auth-service")}}
	carrier := NewHeaderCarrier(&headers)

	assert.Equal(t, "auth-service", carrier.Get("source"))
	assert.Empty(t, carrier.Get("missing"))

	carrier.Set("event_type", "user.registered")
	assert.Equal(t, "user.registered", carrier.Get("event_type"))

	carrier.Set("source", "other")
	assert.Equal(t, "other", carrier.Get("source"))
	assert.Len(t, headers, 2, "overwrite must not append a duplicate")
}

func TestKafkaHeaderCarrier_Keys(t *testing.T) {
	headers := []kafka.Header{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}
	assert.ElementsMatch(t, []string{"a", "b"}, NewHeaderCarrier(&headers).Keys())

	var empty []kafka.Header
	assert.Empty(t, NewHeaderCarrier(&empty).Keys())
}

func TestKafkaHeaderCarrier_TraceContextRoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	prop := propagation.TraceContext{}
	prop.Inject(ctx, NewHeaderCarrier(&headers))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		NewHeaderCarrier(&headers).Get("traceparent"))

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), NewHeaderCarrier(&headers)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
}
