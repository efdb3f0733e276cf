package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New(0)
	id1, err := pub.Publish(context.Background(), "estimates", estimate.Event{Type: estimate.EventTypeFetched, LookupID: "lookup-1"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "estimates" || msgs[1].Topic != "audit" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}
	if ev, ok := msgs[0].Payload.(estimate.Event); !ok || ev.LookupID != "lookup-1" {
		t.Fatalf("unexpected payload %+v", msgs[0].Payload)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherBoundsRetention(t *testing.T) {
	t.Parallel()

	pub := New(2)
	for i := 0; i < 3; i++ {
		if _, err := pub.Publish(context.Background(), "estimates", i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	msgs := pub.Messages()
	if len(msgs) != 2 || msgs[0].ID != "memory-2" || msgs[1].ID != "memory-3" {
		t.Fatalf("unexpected retained messages %+v", msgs)
	}
}

func TestPublisherHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(1).Publish(ctx, "estimates", nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
