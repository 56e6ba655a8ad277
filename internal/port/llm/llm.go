// Package llm defines the port for streaming language model calls.
//
// The model call is an opaque producer of raw increments; everything the
// council knows about provider wire shapes lives in ExtractText, so no
// internal code ever branches on ad hoc chunk layouts.
package llm

import (
	"context"
	"encoding/json"
)

// Request describes one completion call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Stream yields raw increments from a model call. Recv returns io.EOF when
// the stream is exhausted; any other error means the call failed mid-stream.
type Stream interface {
	Recv() (json.RawMessage, error)
	Close() error
}

// Streamer is the port interface for starting a streaming completion.
type Streamer interface {
	StreamCompletion(ctx context.Context, req Request) (Stream, error)
}
