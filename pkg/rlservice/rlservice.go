// Package rlservice exposes the use-case surface (C5) over the engine:
// generate_action, learn, process, and read-only state accessors. Each
// operation is an atomic unit against the engine lock, followed by
// best-effort persistence and event publication that run synchronously
// after the lock is released and never fail the caller — grounded
// on the teacher's service-layer pattern of mutate-then-best-effort-persist
// seen in its colony-offloader decision path.
package rlservice

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/apex-system/rl-engine/pkg/buffer"
	"github.com/apex-system/rl-engine/pkg/engine"
	"github.com/apex-system/rl-engine/pkg/models"
)

// Store is the persistence port C7 must satisfy. Writes are best-effort:
// a failure is logged, never returned to the learning caller (§7).
type Store interface {
	SaveStrategies(ctx context.Context, strategies map[string]models.Strategy) error
	SaveQRow(ctx context.Context, campaignContext string, row map[models.Action]float64) error
	InsertExperience(ctx context.Context, exp models.Experience) error
	DeleteExperience(ctx context.Context, id string) error
	BulkInsertHistory(ctx context.Context, exps []models.Experience) error
	CleanupHistory(ctx context.Context, before time.Time) error
}

// EventPublisher is the event-bus port C6's bus satisfies. Publication is
// best-effort; a publish failure never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// Service is the learning service surface (C5).
type Service struct {
	engine    *engine.Engine
	store     Store
	publisher EventPublisher
}

// New builds a Service. store and publisher may be nil: a nil store skips
// persistence, a nil publisher skips event emission — both are optional
// collaborators per §4.4.
func New(eng *engine.Engine, store Store, publisher EventPublisher) *Service {
	return &Service{engine: eng, store: store, publisher: publisher}
}

// GenerateActionRequest mirrors the §6 action-generation request.
type GenerateActionRequest struct {
	Context models.CampaignContext
	Metrics models.CampaignMetrics
}

// GenerateActionResponse mirrors the §6 action-generation response.
type GenerateActionResponse struct {
	Action     models.Action
	Confidence float64
	Reasoning  string
	Context    models.CampaignContext
	Metrics    models.CampaignMetrics
	Buffer     engine.BufferSnapshot
	Timestamp  time.Time
}

// GenerateAction validates the request, invokes the engine's selection
// algorithm, and returns a buffer snapshot alongside the decision.
//
// Validation errors (InvalidContext/InvalidMetric) are always returned
// structured to the caller per §7. An unexpected internal failure while
// already past validation falls back to a safe default recommendation
// rather than propagating, matching the original source's
// generate_action try/except fallback.
func (s *Service) GenerateAction(req GenerateActionRequest) (resp GenerateActionResponse, err error) {
	if verr := req.Context.Validate(); verr != nil {
		return GenerateActionResponse{}, verr
	}
	if verr := req.Metrics.Validate(); verr != nil {
		return GenerateActionResponse{}, verr
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[rlservice] generate_action recovered from unexpected failure: %v", r)
			resp = GenerateActionResponse{
				Action:     models.ActionOptimizeBiddingStrategy,
				Confidence: 0.1,
				Reasoning:  fmt.Sprintf("Fallback due to error: %v", r),
				Context:    req.Context,
				Metrics:    req.Metrics,
				Buffer:     s.engine.BufferSnapshot(),
				Timestamp:  time.Now().UTC(),
			}
			err = nil
		}
	}()

	result := s.engine.GenerateAction(req.Context, req.Metrics)

	return GenerateActionResponse{
		Action:     result.Action,
		Confidence: result.Confidence,
		Reasoning:  result.Reasoning,
		Context:    req.Context,
		Metrics:    req.Metrics,
		Buffer:     s.engine.BufferSnapshot(),
		Timestamp:  time.Now().UTC(),
	}, nil
}

// LearnRequest mirrors the §6 learning request.
type LearnRequest struct {
	Context       string
	Action        models.Action
	Reward        float64
	Metadata      map[string]string
	CorrelationID string
}

// LearnResponse mirrors the §6 learning response.
type LearnResponse struct {
	Status          string
	ExperienceID    string
	ActiveSize      int
	HistorySize     int
	StrategiesCount int
	AutoProcessed   bool
	ProcessStats    *engine.ProcessStats
}

// Learn validates, appends an experience to the active buffer, and —
// if the auto-process threshold was reached — runs a processing pass
// synchronously before returning. Persistence and event emission happen
// after the engine lock is released and never fail the call (§5, §7).
func (s *Service) Learn(req LearnRequest) (LearnResponse, error) {
	exp, err := s.engine.AddExperience(req.Context, req.Action, req.Reward, req.Metadata)
	if err != nil {
		return LearnResponse{}, err
	}

	s.persistExperience(exp)
	s.publishBestEffort("rl.experience_learned", map[string]interface{}{
		"experience_id":  exp.ID,
		"context":        exp.Context,
		"action":         string(exp.Action),
		"reward":         exp.Reward,
		"correlation_id": req.CorrelationID,
	})

	resp := LearnResponse{
		Status:       "accepted",
		ExperienceID: exp.ID,
	}

	if s.engine.ShouldAutoProcess() {
		stats := s.engine.ProcessExperiences()
		resp.AutoProcessed = true
		resp.ProcessStats = &stats
		s.flushAfterProcessing(stats.Processed)
		s.publishBestEffort("rl.batch_processed", map[string]interface{}{
			"processed_count":    stats.ProcessedCount,
			"strategies_created": stats.StrategiesCreated,
			"strategies_updated": stats.StrategiesUpdated,
			"avg_new_q":          stats.AvgNewQ,
			"correlation_id":     req.CorrelationID,
		})
	}

	snap := s.engine.BufferSnapshot()
	resp.ActiveSize = snap.ActiveSize
	resp.HistorySize = snap.HistorySize
	resp.StrategiesCount = snap.StrategyCount
	return resp, nil
}

// Process forces a processing pass regardless of the auto-process
// threshold.
func (s *Service) Process() engine.ProcessStats {
	stats := s.engine.ProcessExperiences()
	if stats.ProcessedCount > 0 {
		s.flushAfterProcessing(stats.Processed)
	}
	return stats
}

// GetStrategies returns a read-only snapshot of the strategy index.
func (s *Service) GetStrategies() map[string]models.Strategy {
	return s.engine.Strategies()
}

// Metrics is a read-only snapshot for observability: confidence/reward/
// Q-value history, running counters, hyperparameters, and buffer state —
// the original source's get_learning_metrics shape.
type Metrics struct {
	StrategyCount     int
	AvgConfidence     float64
	ConfidenceSamples int
	RewardHistory     []float64
	QValueHistory     []float64
	Counters          engine.Counters
	Hyperparameters   engine.Hyperparameters
	Buffer            engine.BufferSnapshot
	Utilization       buffer.Utilization
}

func (s *Service) GetMetrics() Metrics {
	confidence := s.engine.ConfidenceHistory()
	snap := s.engine.BufferSnapshot()
	return Metrics{
		StrategyCount:     snap.StrategyCount,
		AvgConfidence:     engine.AvgConfidence(confidence),
		ConfidenceSamples: len(confidence),
		RewardHistory:     s.engine.RewardHistory(),
		QValueHistory:     s.engine.QValueHistory(),
		Counters:          s.engine.Counters(),
		Hyperparameters:   s.engine.Hyperparameters(),
		Buffer:            snap,
		Utilization:       s.engine.Utilization(),
	}
}

// BufferKind selects which buffer GetBuffer reads.
type BufferKind string

const (
	BufferActive  BufferKind = "active"
	BufferHistory BufferKind = "history"
)

func (s *Service) GetBuffer(kind BufferKind) []models.Experience {
	if kind == BufferHistory {
		return s.engine.HistoryBuffer()
	}
	return s.engine.ActiveBuffer()
}

// flushAfterProcessing persists the post-pass strategy and Q-table state,
// plus the batch of experiences that were just promoted to history.
// Persistence failures are logged, never surfaced — learning already
// succeeded in memory (§7).
func (s *Service) flushAfterProcessing(processed []models.Experience) {
	if s.store == nil {
		return
	}
	strategies := s.engine.Strategies()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SaveStrategies(ctx, strategies); err != nil {
		log.Printf("[rlservice] save_strategies failed, will retry on next auto-save tick: %v", err)
	}

	qrows := s.engine.QTableSnapshot()
	for campaignContext, row := range qrows {
		if err := s.store.SaveQRow(ctx, campaignContext, row); err != nil {
			log.Printf("[rlservice] save_q_row(%s) failed: %v", campaignContext, err)
		}
	}

	if len(processed) > 0 {
		if err := s.store.BulkInsertHistory(ctx, processed); err != nil {
			log.Printf("[rlservice] bulk_insert_history failed: %v", err)
		}
	}
}

// persistExperience writes exp to the store after the engine lock has
// already been released. It blocks the caller briefly but never fails it.
func (s *Service) persistExperience(exp models.Experience) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.InsertExperience(ctx, exp); err != nil {
		log.Printf("[rlservice] insert_experience(%s) failed: %v", exp.ID, err)
	}
}

// publishBestEffort emits an event after the engine lock has already been
// released. A publish failure is logged and swallowed, never returned.
func (s *Service) publishBestEffort(eventType string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		log.Printf("[rlservice] publish(%s) failed: %v", eventType, err)
	}
}

// NewCorrelationID is a small convenience for callers without one of their
// own (e.g. direct API callers rather than event-driven ones).
func NewCorrelationID() string {
	return uuid.NewString()
}
