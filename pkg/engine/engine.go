// Package engine implements the Q-learning engine (C4): it orchestrates the
// Q-table and the dual buffer, runs epsilon-greedy action selection with
// heuristic fallback, and keeps the per-context strategy index consistent.
// Grounded on the teacher's pkg/learning.QLearning orchestration loop
// (SelectAction / RecordOutcome / the strategy-map maintenance around its
// Q-table), generalized from a discretized-state MD5 key to the normalized
// string context this domain uses.
package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/apex-system/rl-engine/pkg/buffer"
	"github.com/apex-system/rl-engine/pkg/models"
	"github.com/apex-system/rl-engine/pkg/qtable"
)

// Config bundles the engine's hyperparameters and buffer thresholds (§6).
type Config struct {
	LearningRate         float64
	DiscountFactor       float64
	ExplorationRate      float64
	MaxActiveBuffer      int
	MaxHistoryBuffer     int
	AutoProcessThreshold int
	HistoryRetention     time.Duration
}

// DefaultConfig returns the §6 hyperparameter defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:         0.1,
		DiscountFactor:       0.95,
		ExplorationRate:      0.15,
		MaxActiveBuffer:      25,
		MaxHistoryBuffer:     1000,
		AutoProcessThreshold: 15,
		HistoryRetention:     72 * time.Hour,
	}
}

const (
	historyRingSoftCap = 500
	historyRingHardCap = 1000
)

// Engine owns the Q-table, dual buffer, and strategy index, all mutated
// only under its lock (§5 — "the engine lock").
type Engine struct {
	mu sync.Mutex

	cfg Config
	qt  *qtable.QTable
	buf *buffer.DualBuffer

	strategies map[string]*models.Strategy

	confidenceHistory []float64
	rewardHistory     []float64
	qValueHistory     []float64

	totalActions              int
	totalLearningSessions     int
	totalExperiencesProcessed int

	rng *rand.Rand
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		qt:  qtable.New(cfg.LearningRate),
		buf: buffer.New(buffer.Config{
			MaxActiveSize:        cfg.MaxActiveBuffer,
			MaxHistorySize:       cfg.MaxHistoryBuffer,
			AutoProcessThreshold: cfg.AutoProcessThreshold,
			HistoryRetention:     cfg.HistoryRetention,
		}),
		strategies: make(map[string]*models.Strategy),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ActionResult is the outcome of GenerateAction.
type ActionResult struct {
	Action     models.Action
	Confidence float64
	Reasoning  string
}

// GenerateAction implements the §4.3 selection algorithm.
func (e *Engine) GenerateAction(ctx models.CampaignContext, metrics models.CampaignMetrics) ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := ctx.Normalize()

	if strategy, ok := e.strategies[key]; ok {
		if e.rng.Float64() < e.cfg.ExplorationRate {
			actions := models.AllActions()
			action := actions[e.rng.Intn(len(actions))]
			return e.recordConfidence(ActionResult{
				Action:     action,
				Confidence: 0.5,
				Reasoning:  "Exploration: random action under epsilon-greedy policy",
			})
		}

		confidence := strategy.Confidence()
		return e.recordConfidence(ActionResult{
			Action:     strategy.BestAction,
			Confidence: confidence,
			Reasoning:  fmt.Sprintf("Exploitation over %d experiences", strategy.TotalExperiences),
		})
	}

	if e.qt.HasContext(key) {
		action, q, found := e.qt.BestAction(key, models.AllActions())
		if found {
			confidence := clamp(0.4+0.1*q, 0, 0.9)
			return e.recordConfidence(ActionResult{
				Action:     action,
				Confidence: confidence,
				Reasoning:  "Q-table match without a strategy index entry",
			})
		}
	}

	action := heuristicFallback(ctx, metrics)
	return e.recordConfidence(ActionResult{
		Action:     action,
		Confidence: 0.5,
		Reasoning:  "Heuristic fallback: no learned data for this context",
	})
}

func (e *Engine) recordConfidence(result ActionResult) ActionResult {
	e.totalActions++
	e.confidenceHistory = trimRing(append(e.confidenceHistory, result.Confidence))
	return result
}

// trimRing applies the original source's bounded-history rule: once a
// ring exceeds 1000 entries it is trimmed back to the most recent 500,
// rather than trimmed one at a time.
func trimRing(values []float64) []float64 {
	if len(values) > historyRingHardCap {
		return values[len(values)-historyRingSoftCap:]
	}
	return values
}

// heuristicFallback implements the §4.3 step-4 substring rules against the
// lower-cased strategic context.
func heuristicFallback(ctx models.CampaignContext, metrics models.CampaignMetrics) models.Action {
	lowered := strings.ToLower(ctx.StrategicContext)

	switch {
	case strings.Contains(lowered, "cpa"):
		if metrics.ROAS < 2.0 {
			return models.ActionFocusHighValueAudiences
		}
		return models.ActionReduceBidConservative
	case strings.Contains(lowered, "roas"):
		return models.ActionFocusHighValueAudiences
	case strings.Contains(lowered, "awareness"):
		return models.ActionExpandReachCampaigns
	case strings.Contains(lowered, "conversion"):
		return models.ActionIncreaseBidConversionKeyword
	case strings.Contains(lowered, "reach"):
		return models.ActionExpandReachCampaigns
	case strings.Contains(lowered, "ctr"):
		return models.ActionOptimizeForCTR
	default:
		return models.ActionOptimizeBiddingStrategy
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AddExperience validates and appends a new experience to the active
// buffer, returning it. The caller decides separately whether to trigger a
// processing pass (ShouldAutoProcess).
func (e *Engine) AddExperience(context string, action models.Action, reward float64, metadata map[string]string) (models.Experience, error) {
	exp, err := models.NewExperience(context, action, reward, metadata)
	if err != nil {
		return models.Experience{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Append(exp)
	e.totalLearningSessions++
	return exp, nil
}

// ShouldAutoProcess reports whether the active buffer has reached the
// auto-process threshold.
func (e *Engine) ShouldAutoProcess() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.ShouldAutoProcess()
}

// ProcessStats summarizes one processing pass (§4.3).
type ProcessStats struct {
	ProcessedCount    int
	StrategiesCreated int
	StrategiesUpdated int
	AvgNewQ           float64
	Processed         []models.Experience
}

// ProcessExperiences runs the §4.3 processing pass over every unprocessed
// entry in the active buffer, in append order, then promotes them to
// history as a single batch.
func (e *Engine) ProcessExperiences() ProcessStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	unprocessed := e.buf.Unprocessed()
	stats := ProcessStats{}
	if len(unprocessed) == 0 {
		return stats
	}

	now := time.Now().UTC()
	var sumNewQ float64

	processed := make([]models.Experience, 0, len(unprocessed))
	for _, exp := range unprocessed {
		newQ := e.qt.Update(exp.Context, exp.Action, exp.Reward)
		sumNewQ += newQ
		e.rewardHistory = trimRing(append(e.rewardHistory, exp.Reward))
		e.qValueHistory = trimRing(append(e.qValueHistory, newQ))

		strategy, existed := e.strategies[exp.Context]
		if !existed {
			strategy = models.NewStrategy(exp.Context)
			e.strategies[exp.Context] = strategy
			stats.StrategiesCreated++
		} else {
			stats.StrategiesUpdated++
		}

		strategy.RecordOutcome(exp.Action, newQ, exp.Reward, now)
		strategy.RecomputeBest(e.qt.Row(exp.Context))

		exp.MarkProcessed(now)
		processed = append(processed, exp)
		stats.ProcessedCount++
	}

	e.buf.Promote(processed)
	stats.Processed = processed
	e.totalExperiencesProcessed += stats.ProcessedCount

	if stats.ProcessedCount > 0 {
		stats.AvgNewQ = sumNewQ / float64(stats.ProcessedCount)
	}
	return stats
}

// CalculateReward implements the §4.3 reward-calculation contract used by
// the event consumer when only raw metrics and a success flag are known.
func CalculateReward(success bool, metrics models.CampaignMetrics) float64 {
	reward := -0.5
	if success {
		reward = 0.5
	}

	switch {
	case metrics.ROAS > 3.0:
		reward += 0.3
	case metrics.ROAS < 1.0:
		reward -= 0.3
	}

	switch {
	case metrics.CTR > 2.5:
		reward += 0.2
	case metrics.CTR < 0.8:
		reward -= 0.2
	}

	if metrics.Conversions > 30 {
		reward += 0.1
	}

	return clamp(reward, -1.0, 1.0)
}

// Strategies returns a read-only snapshot of the strategy index.
func (e *Engine) Strategies() map[string]models.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]models.Strategy, len(e.strategies))
	for ctx, s := range e.strategies {
		out[ctx] = *s
	}
	return out
}

// QTableSnapshot returns a deep copy of the Q-table, for persistence and
// read-only inspection.
func (e *Engine) QTableSnapshot() map[string]map[models.Action]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.qt.Snapshot()
}

// BufferSnapshot reports the active/history sizes and strategies count, for
// the C5 response envelope.
type BufferSnapshot struct {
	ActiveSize    int
	HistorySize   int
	StrategyCount int
	ActiveUnproc  int
	OverflowCount int
}

func (e *Engine) BufferSnapshot() BufferSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return BufferSnapshot{
		ActiveSize:    e.buf.ActiveLen(),
		HistorySize:   e.buf.HistoryLen(),
		StrategyCount: len(e.strategies),
		ActiveUnproc:  e.buf.UnprocessedCount(),
		OverflowCount: e.buf.OverflowCount(),
	}
}

// ActiveBuffer and HistoryBuffer return read-only snapshots for get_buffer.
func (e *Engine) ActiveBuffer() []models.Experience {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Active()
}

func (e *Engine) HistoryBuffer() []models.Experience {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.History()
}

// Utilization exposes the dual buffer's fill ratios.
func (e *Engine) Utilization() buffer.Utilization {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Utilization()
}

// ConfidenceHistory returns a copy of the bounded confidence ring, for
// get_metrics.
func (e *Engine) ConfidenceHistory() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRing(e.confidenceHistory)
}

// RewardHistory and QValueHistory return copies of the corresponding
// bounded rings, mirroring reward_history/q_value_history in the original
// source's learning metrics.
func (e *Engine) RewardHistory() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRing(e.rewardHistory)
}

func (e *Engine) QValueHistory() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRing(e.qValueHistory)
}

func copyRing(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Counters reports the engine-wide running totals mirrored from the
// original source's total_actions / total_learning_sessions /
// total_experiences_processed fields.
type Counters struct {
	TotalActions              int
	TotalLearningSessions     int
	TotalExperiencesProcessed int
}

func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Counters{
		TotalActions:              e.totalActions,
		TotalLearningSessions:     e.totalLearningSessions,
		TotalExperiencesProcessed: e.totalExperiencesProcessed,
	}
}

// Hyperparameters exposes the engine's fixed-at-start config for metrics
// reporting (the original source's get_learning_metrics "hyperparameters"
// key).
type Hyperparameters struct {
	LearningRate    float64
	DiscountFactor  float64
	ExplorationRate float64
}

func (e *Engine) Hyperparameters() Hyperparameters {
	return Hyperparameters{
		LearningRate:    e.cfg.LearningRate,
		DiscountFactor:  e.cfg.DiscountFactor,
		ExplorationRate: e.cfg.ExplorationRate,
	}
}

// PruneHistory removes aged-out history entries under lock; used by the
// memory_cleanup periodic task (§5).
func (e *Engine) PruneHistory(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.PruneHistory(now)
}

// LoadState restores the Q-table, strategy index, and buffers from
// persistence at startup. Not safe to call concurrently with other engine
// operations; callers run it before accepting traffic.
func (e *Engine) LoadState(qRows map[string]map[models.Action]float64, strategies map[string]*models.Strategy, active, history []models.Experience) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.qt.Load(qRows)
	e.strategies = strategies
	if e.strategies == nil {
		e.strategies = make(map[string]*models.Strategy)
	}
	e.buf.LoadActive(active)
	e.buf.LoadHistory(history)
}

// CheckInvariants verifies I1, I2, I4, and I5 against the engine's current
// in-memory state, returning a KindInvariant RLError on the first
// violation found. None of these should ever actually fire given how
// ProcessExperiences and the buffer are constructed; this exists as the
// fatal-path detector §7 requires rather than as a belief that the
// invariants need runtime policing.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buf.ActiveLen() > e.cfg.MaxActiveBuffer {
		return models.NewInvariantViolationError("active buffer size exceeds max_active_size (I5)")
	}
	if e.buf.HistoryLen() > e.cfg.MaxHistoryBuffer {
		return models.NewInvariantViolationError("history buffer size exceeds max_history_size (I5)")
	}

	for _, exp := range e.buf.History() {
		if !exp.Processed || exp.ProcessedAt == nil {
			return models.NewInvariantViolationError("history entry " + exp.ID + " missing processed/processed_at (I1)")
		}
	}

	for ctx, s := range e.strategies {
		row := e.qt.Row(ctx)
		check := *s
		check.RecomputeBest(row)
		if check.BestAction != s.BestAction || check.BestQValue != s.BestQValue {
			return models.NewInvariantViolationError("strategy at " + ctx + " diverged from its q-table row (I2)")
		}

		sum := 0
		for _, detail := range s.ActionDetails {
			sum += detail.Count
		}
		if sum != s.TotalExperiences {
			return models.NewInvariantViolationError("action_details counts do not sum to total_experiences at " + ctx + " (I4)")
		}
	}

	return nil
}

// AvgConfidence is a small helper for metrics reporting.
func AvgConfidence(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	return sum / float64(len(history))
}
