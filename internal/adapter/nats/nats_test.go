package nats

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Publisher {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	p, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return p
}

func TestPublishDecisionRoundTrip(t *testing.T) {
	p := testConnect(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	stop, err := p.Subscribe(ctx, "decisions.completed.>", func(_ string, data []byte) error {
		select {
		case received <- data:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	resp := &decision.Response{
		RequestID:     uuid.NewString(),
		FinalDecision: decision.VerdictApproved,
		Confidence:    0.9,
	}
	if err := p.PublishDecision(ctx, resp); err != nil {
		t.Fatalf("PublishDecision: %v", err)
	}

	select {
	case data := <-received:
		var got decision.Response
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.RequestID != resp.RequestID {
			t.Fatalf("request id = %q, want %q", got.RequestID, resp.RequestID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("decision never delivered")
	}
}
