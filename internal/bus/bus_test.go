package bus

import (
	"context"
	"testing"
	"time"

	"sqlcheck/internal/events"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := New()
	sub, err := b.Subscribe(events.TopicRequests)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	env, err := events.New(events.SqlCheckRequested, "corr-1", events.RequestPayload{JobID: "job-1", TaskID: "task-1"})
	if err != nil {
		t.Fatalf("New envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Publish(ctx, events.TopicRequests, env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub:
		if got.EventID != env.EventID {
			t.Fatalf("expected envelope to round-trip, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx := context.Background()
	env, _ := events.New(events.WorkerHeartbeat, "", events.HeartbeatPayload{})
	if err := b.Publish(ctx, events.TopicResults, env); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()
	reqSub, _ := b.Subscribe(events.TopicRequests)
	resultSub, _ := b.Subscribe(events.TopicResults)

	env, _ := events.New(events.SqlCheckRequested, "c", events.RequestPayload{})
	ctx := context.Background()
	if err := b.Publish(ctx, events.TopicRequests, env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-resultSub:
		t.Fatal("result topic should not have received a request-topic envelope")
	default:
	}
	select {
	case <-reqSub:
	default:
		t.Fatal("expected envelope on requests topic")
	}
}
