// Package service wires the council pipeline to its surrounding
// infrastructure: cache, history store, event bus, broadcast hub and
// telemetry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nerv-labs/magi/internal/adapter/otel"
	"github.com/nerv-labs/magi/internal/council"
	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/domain/event"
	"github.com/nerv-labs/magi/internal/port/broadcast"
	"github.com/nerv-labs/magi/internal/port/cache"
	"github.com/nerv-labs/magi/internal/port/history"
)

// DecisionPublisher fans completed decisions and their events to an
// external bus.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, resp *decision.Response) error
	PublishEvent(ctx context.Context, ev event.Event) error
}

// ExecStats summarizes the runs this process has served.
type ExecStats struct {
	TotalRuns         int64   `json:"total_runs"`
	Succeeded         int64   `json:"succeeded"`
	Failed            int64   `json:"failed"`
	CacheHits         int64   `json:"cache_hits"`
	AverageDurationMS float64 `json:"average_duration_ms"`
}

// CouncilService runs decisions end to end. The cache, history store and
// publisher are optional; a nil dependency disables that concern.
type CouncilService struct {
	pipeline  *council.Pipeline
	log       *slog.Logger
	cache     cache.Cache
	cacheTTL  time.Duration
	history   history.Store
	publisher DecisionPublisher
	hub       broadcast.Broadcaster
	metrics   *otel.Metrics

	mu          sync.Mutex
	stats       ExecStats
	durationSum float64
}

// NewCouncilService creates the service around a pipeline.
func NewCouncilService(pipeline *council.Pipeline, log *slog.Logger) *CouncilService {
	return &CouncilService{pipeline: pipeline, log: log}
}

// SetCache enables response caching with the given TTL.
func (s *CouncilService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetHistory enables the durable decision audit log.
func (s *CouncilService) SetHistory(h history.Store) {
	s.history = h
}

// SetPublisher enables publishing completed decisions to the bus.
func (s *CouncilService) SetPublisher(p DecisionPublisher) {
	s.publisher = p
}

// SetHub enables broadcasting the live event feed to connected clients.
func (s *CouncilService) SetHub(h broadcast.Broadcaster) {
	s.hub = h
}

// SetMetrics enables telemetry instruments.
func (s *CouncilService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// Decide runs one decision, consulting the cache first. Events stream to
// sink and, when configured, to the broadcast hub and the bus.
func (s *CouncilService) Decide(ctx context.Context, req decision.Request, sink event.Sink) (*decision.Response, error) {
	question := strings.TrimSpace(req.Question)
	key := cache.Key(question, req.Context)

	if s.cache != nil && question != "" {
		if resp, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			s.log.Info("decision served from cache", "request_id", resp.RequestID)
			s.recordRun(0, true, true)
			sink.Emit(event.New(event.TypeComplete, "", resp))
			return resp, nil
		}
	}

	ctx, span := otel.StartDecisionSpan(ctx, req.TraceID)
	defer span.End()

	if s.metrics != nil {
		s.metrics.DecisionsStarted.Add(ctx, 1)
	}

	start := time.Now()
	resp, err := s.pipeline.Run(ctx, req, s.fanOut(ctx, sink))
	elapsed := time.Since(start)

	if err != nil {
		s.recordRun(elapsed, false, false)
		return nil, err
	}
	s.recordRun(elapsed, true, false)

	if s.metrics != nil {
		s.metrics.RecordCompletion(ctx, string(resp.FinalDecision),
			resp.DegradedMode, elapsed.Seconds())
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.log.Warn("cache decision", "error", err)
		}
	}
	if s.history != nil {
		if err := s.history.SaveDecision(ctx, question, req.Context, resp); err != nil {
			s.log.Warn("persist decision", "request_id", resp.RequestID, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishDecision(ctx, resp); err != nil {
			s.log.Warn("publish decision", "request_id", resp.RequestID, "error", err)
		}
	}

	return resp, nil
}

// History returns the audit store, or nil when persistence is disabled.
func (s *CouncilService) History() history.Store {
	return s.history
}

// Stats returns a snapshot of the execution statistics.
func (s *CouncilService) Stats() ExecStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// fanOut composes the caller's sink with the hub and the bus publisher.
func (s *CouncilService) fanOut(ctx context.Context, sink event.Sink) event.Sink {
	return event.SinkFunc(func(ev event.Event) {
		sink.Emit(ev)
		if s.hub != nil {
			s.hub.BroadcastEvent(ctx, ev)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishEvent(ctx, ev); err != nil {
				s.log.Debug("publish event", "type", ev.Type, "error", err)
			}
		}
	})
}

func (s *CouncilService) recordRun(elapsed time.Duration, ok, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRuns++
	if cached {
		s.stats.CacheHits++
	}
	if ok {
		s.stats.Succeeded++
	} else {
		s.stats.Failed++
	}
	if !cached {
		s.durationSum += float64(elapsed.Milliseconds())
	}
	if runs := s.stats.TotalRuns - s.stats.CacheHits; runs > 0 {
		s.stats.AverageDurationMS = s.durationSum / float64(runs)
	}
}

// IsValidationError reports whether err is a caller mistake rather than a
// pipeline failure, for HTTP status mapping.
func IsValidationError(err error) bool {
	return errors.Is(err, council.ErrEmptyQuestion)
}
