package models

import (
	"math"
	"time"
)

// ActionDetail accumulates the observed outcomes of one action within a
// Strategy's context row.
type ActionDetail struct {
	Count     int     `json:"count"`
	SumReward float64 `json:"sum_reward"`
	SumQ      float64 `json:"sum_q"`
}

const AlgorithmVersion = "q_learning_v1"

// Strategy is the per-context index summarizing a learned Q-table row. It is
// a derived index: BestAction/BestQValue are always recomputed from the
// Q-table row rather than tracked incrementally, which keeps invariant I2
// (best_action/best_q_value = argmax/max over the row) trivially true.
type Strategy struct {
	Context          string                   `json:"context"`
	BestAction       Action                   `json:"best_action"`
	BestQValue       float64                  `json:"best_q_value"`
	TotalExperiences int                      `json:"total_experiences"`
	ActionsCount     int                      `json:"actions_count"`
	ActionDetails    map[Action]*ActionDetail `json:"action_details"`
	QValues          map[Action]float64       `json:"q_values"`
	CreatedAt        time.Time                `json:"created_at"`
	LastUpdated      time.Time                `json:"last_updated"`
	AlgorithmVersion string                   `json:"algorithm_version"`
}

// NewStrategy creates the strategy record for a context's first processed
// experience.
func NewStrategy(context string) *Strategy {
	now := time.Now().UTC()
	return &Strategy{
		Context:          context,
		ActionDetails:    make(map[Action]*ActionDetail),
		QValues:          make(map[Action]float64),
		CreatedAt:        now,
		LastUpdated:      now,
		AlgorithmVersion: AlgorithmVersion,
	}
}

// RecordOutcome folds one processed experience's result into the per-action
// accounting (I3, I4) and bumps the strategy's clock. It does not touch
// BestAction/BestQValue/QValues — callers must follow with RecomputeBest
// against the authoritative Q-table row to restore I2.
func (s *Strategy) RecordOutcome(action Action, newQ, reward float64, now time.Time) {
	detail, ok := s.ActionDetails[action]
	if !ok {
		detail = &ActionDetail{}
		s.ActionDetails[action] = detail
	}
	detail.Count++
	detail.SumReward += reward
	detail.SumQ += newQ

	s.TotalExperiences++
	s.ActionsCount = len(s.ActionDetails)
	s.LastUpdated = now.UTC()
}

// RecomputeBest restores invariant I2 by recomputing BestAction/BestQValue
// and QValues from the authoritative Q-table row. Ties are broken by enum
// order (AllActions()).
func (s *Strategy) RecomputeBest(qRow map[Action]float64) {
	s.QValues = make(map[Action]float64, len(qRow))
	for action, q := range qRow {
		s.QValues[action] = q
	}

	var best Action
	bestQ := math.Inf(-1)
	found := false
	for _, action := range AllActions() {
		q, ok := qRow[action]
		if !ok {
			continue
		}
		if !found || q > bestQ {
			best = action
			bestQ = q
			found = true
		}
	}

	if found {
		s.BestAction = best
		s.BestQValue = bestQ
	}
}

// Confidence is a monotone function of TotalExperiences and BestQValue
// satisfying the three anchor points fixed in the spec:
//   - 0 experiences  => confidence <= 0.3
//   - >=50 experiences with a non-negative best Q-value => confidence >= 0.8
//   - bounded in [0, 0.95]
//
// The 0.3 base plus the n-term (0.65*(1-e^-n/20)) already reaches about
// 0.897 at n=50, so the Q-value bonus is pure upside rather than something
// the second anchor depends on. The Q-value bonus is only applied once at
// least one experience has been recorded, which keeps the first anchor.
func (s Strategy) Confidence() float64 {
	n := float64(s.TotalExperiences)
	experienceTerm := 0.65 * (1 - math.Exp(-n/20.0))

	q := s.BestQValue
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	qTerm := 0.15 * q
	if s.TotalExperiences == 0 {
		qTerm = 0
	}

	confidence := 0.3 + experienceTerm + qTerm
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
