// Package history defines the port for the durable record of completed
// decisions.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// ErrNotFound is returned when no stored decision matches the request id.
var ErrNotFound = errors.New("decision not found")

// Entry is one row of the decision audit log.
type Entry struct {
	RequestID       string           `json:"request_id"`
	TraceID         string           `json:"trace_id"`
	Question        string           `json:"question"`
	FinalDecision   decision.Verdict `json:"final_decision"`
	Confidence      float64          `json:"confidence"`
	HasErrors       bool             `json:"has_errors"`
	DegradedMode    bool             `json:"degraded_mode"`
	ExecutionTimeMS int64            `json:"execution_time_ms"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Store persists completed decisions for later audit.
type Store interface {
	// SaveDecision records a completed run together with its input.
	SaveDecision(ctx context.Context, question, contextText string, resp *decision.Response) error
	// ListDecisions returns the most recent entries, newest first.
	ListDecisions(ctx context.Context, limit, offset int) ([]Entry, error)
	// GetDecision returns the full stored response for one request id.
	GetDecision(ctx context.Context, requestID string) (*decision.Response, error)
}
