package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

func TestNewRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{ProjectID: "proj"})
	require.Error(t, err)
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := NewWithTopic(nil).Publish(context.Background(), "estimates", nil)
	require.Error(t, err)
}

func TestNewMessageInjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	msg, err := newMessage(ctx, "estimates", estimate.Event{Type: estimate.EventTypeFetched, LookupID: "lookup-1"})
	require.NoError(t, err)
	require.Equal(t, "estimates", msg.Attributes["topic"])
	require.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", msg.Attributes["traceparent"])
	require.Contains(t, string(msg.Data), `"type":"estimate.fetched"`)
	require.Contains(t, string(msg.Data), `"lookup_id":"lookup-1"`)
}

func TestCarrierKeys(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("a", "1")
	require.Equal(t, "1", c.Get("a"))
	require.Equal(t, []string{"a"}, c.Keys())
}
