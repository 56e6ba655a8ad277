package otel

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nerv-labs/magi/internal/port/llm"
)

// TracedStreamer wraps a streamer so every model stream gets its own span,
// nested under the decision span when one is active on the context.
type TracedStreamer struct {
	next llm.Streamer
}

// TraceStreamer decorates next with per-stream tracing.
func TraceStreamer(next llm.Streamer) *TracedStreamer {
	return &TracedStreamer{next: next}
}

// StreamCompletion opens the underlying stream inside a new span. The span
// ends when the stream is closed or hits a terminal error.
func (t *TracedStreamer) StreamCompletion(ctx context.Context, req llm.Request) (llm.Stream, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "model.stream",
		trace.WithAttributes(
			attribute.String("model.id", req.Model),
			attribute.Float64("model.temperature", req.Temperature),
		),
	)

	stream, err := t.next.StreamCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	return &tracedStream{next: stream, span: span}, nil
}

type tracedStream struct {
	next llm.Stream
	span trace.Span
}

func (s *tracedStream) Recv() (json.RawMessage, error) {
	chunk, err := s.next.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	return chunk, err
}

func (s *tracedStream) Close() error {
	s.span.End()
	return s.next.Close()
}
