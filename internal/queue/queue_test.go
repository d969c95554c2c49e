package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if err := q.Publish(ctx, Message{Type: "attendance", Body: []byte("rec-1")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Type != "attendance" || string(msg.Body) != "rec-1" {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(0) // unbuffered, nobody consuming
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := q.Publish(ctx, Message{Type: "attendance"}); err == nil {
		t.Error("expected context error on blocked publish")
	}
}
