package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Experience is one learning sample: a (context, action, reward) tuple the
// engine has either just ingested or already applied to the Q-table.
// It is an immutable value record once Processed flips to true; the only
// mutation allowed afterward is inspection.
type Experience struct {
	ID          string            `json:"id"`
	Context     string            `json:"context"`
	Action      Action            `json:"action"`
	Reward      float64           `json:"reward"`
	Timestamp   time.Time         `json:"timestamp"`
	Processed   bool              `json:"processed"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewExperience validates its inputs (I6) and constructs an Experience with
// a fresh id and a UTC timestamp.
func NewExperience(context string, action Action, reward float64, metadata map[string]string) (Experience, error) {
	if strings.TrimSpace(context) == "" {
		return Experience{}, NewInvalidContextError("context cannot be empty")
	}
	if !action.IsValid() {
		return Experience{}, NewInvalidActionError("invalid action: " + string(action))
	}
	if reward < -1.0 || reward > 1.0 {
		return Experience{}, NewInvalidRewardError("reward must be between -1.0 and 1.0")
	}

	return Experience{
		ID:        uuid.NewString(),
		Context:   context,
		Action:    action,
		Reward:    reward,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}, nil
}

// MarkProcessed flips Processed to true and stamps ProcessedAt exactly once.
// Calling it on an already-processed experience is a no-op.
func (e *Experience) MarkProcessed(at time.Time) {
	if e.Processed {
		return
	}
	e.Processed = true
	at = at.UTC()
	e.ProcessedAt = &at
}

// AgeMinutes reports how long ago the experience was recorded.
func (e Experience) AgeMinutes() float64 {
	return time.Since(e.Timestamp).Minutes()
}
