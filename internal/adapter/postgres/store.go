package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/port/history"
)

// Store persists completed decisions. It implements history.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a decision-history store on an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveDecision records one completed run. The full response is stored as
// JSONB next to the queryable columns.
func (s *Store) SaveDecision(ctx context.Context, question, contextText string, resp *decision.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	const q = `
		INSERT INTO decisions (request_id, trace_id, question, context_text,
			final_decision, confidence, has_errors, degraded_mode,
			execution_time_ms, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, q,
		resp.RequestID, resp.TraceID, question, contextText,
		string(resp.FinalDecision), resp.Confidence, resp.HasErrors, resp.DegradedMode,
		resp.ExecutionTimeMS, payload, resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decision entries, newest first.
func (s *Store) ListDecisions(ctx context.Context, limit, offset int) ([]history.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT request_id, trace_id, question, final_decision, confidence,
			has_errors, degraded_mode, execution_time_ms, created_at
		FROM decisions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var result []history.Entry
	for rows.Next() {
		var e history.Entry
		var verdict string
		if err := rows.Scan(
			&e.RequestID, &e.TraceID, &e.Question, &verdict, &e.Confidence,
			&e.HasErrors, &e.DegradedMode, &e.ExecutionTimeMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.FinalDecision = decision.Verdict(verdict)
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetDecision returns the full stored response for one request id.
func (s *Store) GetDecision(ctx context.Context, requestID string) (*decision.Response, error) {
	const q = `SELECT response FROM decisions WHERE request_id = $1`

	var payload []byte
	if err := s.pool.QueryRow(ctx, q, requestID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get decision %s: %w", requestID, history.ErrNotFound)
		}
		return nil, fmt.Errorf("get decision %s: %w", requestID, err)
	}

	var resp decision.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal stored response: %w", err)
	}
	return &resp, nil
}
