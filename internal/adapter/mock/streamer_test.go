package mock_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/nerv-labs/magi/internal/adapter/mock"
	"github.com/nerv-labs/magi/internal/extract"
	"github.com/nerv-labs/magi/internal/port/llm"
)

func drain(t *testing.T, s llm.Stream) string {
	t.Helper()
	var text string
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if piece, ok := llm.ExtractText(chunk); ok {
			text += piece
		}
	}
	return text
}

func TestSageOutputParses(t *testing.T) {
	s := mock.New()
	stream, err := s.StreamCompletion(context.Background(), llm.Request{
		Prompt: "You are CASPAR. Should we adopt this proven, safe and efficient plan?",
	})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}

	fields := extract.Extract(drain(t, stream), "decision")
	if fields == nil {
		t.Fatal("sage output did not parse")
	}
	if fields.Verdict() == "" {
		t.Fatal("sage output has no verdict")
	}
	if fields.Confidence <= 0 || fields.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", fields.Confidence)
	}
}

func TestJudgeFollowsMajority(t *testing.T) {
	s := mock.New()
	prompt := "You are SOLOMON.\n" +
		"- verdict: APPROVED\n- verdict: APPROVED\n- verdict: REJECTED\n"
	stream, err := s.StreamCompletion(context.Background(), llm.Request{Prompt: prompt})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}

	fields := extract.Extract(drain(t, stream), "final_decision")
	if fields == nil {
		t.Fatal("judge output did not parse")
	}
	if fields.FinalDecision != "APPROVED" {
		t.Fatalf("expected APPROVED, got %q", fields.FinalDecision)
	}
	if len(fields.Scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(fields.Scores))
	}
}

func TestPersonaBiasDiverges(t *testing.T) {
	// A neutral question lands on the keyword boundary, where caspar and
	// balthasar split.
	s := mock.New()
	question := "Should we do the thing?"

	verdicts := map[string]string{}
	for _, persona := range []string{"CASPAR", "BALTHASAR"} {
		stream, err := s.StreamCompletion(context.Background(), llm.Request{
			Prompt: "You are " + persona + ". " + question,
		})
		if err != nil {
			t.Fatalf("StreamCompletion failed: %v", err)
		}
		fields := extract.Extract(drain(t, stream), "decision")
		if fields == nil {
			t.Fatalf("%s output did not parse", persona)
		}
		verdicts[persona] = fields.Verdict()
	}

	if verdicts["CASPAR"] != "REJECTED" {
		t.Errorf("caspar on neutral input = %s, want REJECTED", verdicts["CASPAR"])
	}
	if verdicts["BALTHASAR"] != "APPROVED" {
		t.Errorf("balthasar on neutral input = %s, want APPROVED", verdicts["BALTHASAR"])
	}
}

func TestStreamRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := mock.New()
	stream, err := s.StreamCompletion(ctx, llm.Request{Prompt: "You are MELCHIOR."})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if _, err := stream.Recv(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
