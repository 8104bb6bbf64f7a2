// Package buffer implements the dual-buffer experience pipeline: a bounded
// active FIFO for fresh, possibly-unprocessed experiences, and a bounded,
// age-limited history FIFO for processed ones. Grounded on the bounded-FIFO
// and eviction idiom of the teacher's internal/database batch-insert and
// queue packages, adapted to the spec's drop-oldest overflow contract.
package buffer

import (
	"time"

	"github.com/apex-system/rl-engine/pkg/models"
)

// DualBuffer holds the active and history experience FIFOs plus the
// thresholds governing promotion and eviction.
type DualBuffer struct {
	maxActiveSize        int
	maxHistorySize       int
	autoProcessThreshold int
	historyRetention     time.Duration

	active  []models.Experience
	history []models.Experience

	overflowCount int
}

// Config bundles the buffer's size and timing thresholds (§3, §6).
type Config struct {
	MaxActiveSize        int
	MaxHistorySize       int
	AutoProcessThreshold int
	HistoryRetention     time.Duration
}

func New(cfg Config) *DualBuffer {
	return &DualBuffer{
		maxActiveSize:        cfg.MaxActiveSize,
		maxHistorySize:       cfg.MaxHistorySize,
		autoProcessThreshold: cfg.AutoProcessThreshold,
		historyRetention:     cfg.HistoryRetention,
		active:               make([]models.Experience, 0, cfg.MaxActiveSize),
		history:              make([]models.Experience, 0, cfg.MaxHistorySize),
	}
}

// Append adds an experience to the active buffer. If the buffer is already
// at capacity, the oldest entry is dropped (even if unprocessed) and the
// overflow counter increments — this is the accepted, lossy overload
// behavior of §4.2/§7.
func (b *DualBuffer) Append(exp models.Experience) {
	b.active = append(b.active, exp)
	if len(b.active) > b.maxActiveSize {
		dropped := len(b.active) - b.maxActiveSize
		b.active = b.active[dropped:]
		b.overflowCount += dropped
	}
}

// Unprocessed returns all active entries with Processed=false, in insertion
// order.
func (b *DualBuffer) Unprocessed() []models.Experience {
	out := make([]models.Experience, 0, len(b.active))
	for _, exp := range b.active {
		if !exp.Processed {
			out = append(out, exp)
		}
	}
	return out
}

// UnprocessedCount is a cheaper variant of len(Unprocessed()) for the
// threshold check.
func (b *DualBuffer) UnprocessedCount() int {
	count := 0
	for _, exp := range b.active {
		if !exp.Processed {
			count++
		}
	}
	return count
}

// ShouldAutoProcess reports whether the unprocessed count has reached the
// auto-process threshold.
func (b *DualBuffer) ShouldAutoProcess() bool {
	return b.UnprocessedCount() >= b.autoProcessThreshold
}

// Promote appends the given (now-processed) entries to history in order,
// enforcing the history size bound (drop-oldest), then removes those
// entries from active by id. Ordering within the pass is preserved (I1).
func (b *DualBuffer) Promote(processed []models.Experience) {
	if len(processed) == 0 {
		return
	}

	promotedIDs := make(map[string]struct{}, len(processed))
	for _, exp := range processed {
		promotedIDs[exp.ID] = struct{}{}
		b.history = append(b.history, exp)
	}
	if len(b.history) > b.maxHistorySize {
		dropped := len(b.history) - b.maxHistorySize
		b.history = b.history[dropped:]
	}

	remaining := b.active[:0:0]
	for _, exp := range b.active {
		if _, promoted := promotedIDs[exp.ID]; promoted {
			continue
		}
		remaining = append(remaining, exp)
	}
	b.active = remaining
}

// PruneHistory removes history entries older than the configured retention
// window as of now.
func (b *DualBuffer) PruneHistory(now time.Time) int {
	kept := b.history[:0:0]
	removed := 0
	for _, exp := range b.history {
		if now.Sub(exp.Timestamp) > b.historyRetention {
			removed++
			continue
		}
		kept = append(kept, exp)
	}
	b.history = kept
	return removed
}

// Active returns a copy of the active buffer.
func (b *DualBuffer) Active() []models.Experience {
	out := make([]models.Experience, len(b.active))
	copy(out, b.active)
	return out
}

// History returns a copy of the history buffer.
func (b *DualBuffer) History() []models.Experience {
	out := make([]models.Experience, len(b.history))
	copy(out, b.history)
	return out
}

// ActiveLen and HistoryLen report current sizes (I5 bounds these).
func (b *DualBuffer) ActiveLen() int  { return len(b.active) }
func (b *DualBuffer) HistoryLen() int { return len(b.history) }

// OverflowCount reports how many experiences (processed or not) have been
// dropped by active-buffer overflow since startup.
func (b *DualBuffer) OverflowCount() int { return b.overflowCount }

// Utilization reports active/history fill ratios as percentages, plus the
// oldest/newest timestamps in each buffer and the most recent
// processed_at across history — a fuller shape than spec.md's §4.2
// requires, matching the original source's get_active_buffer_utilization
// / get_history_buffer_utilization / get_buffer_status detail level.
type Utilization struct {
	ActiveSize            int        `json:"active_size"`
	ActiveMax             int        `json:"active_max"`
	ActiveUtilizationPct  float64    `json:"active_utilization_percent"`
	ActiveOldest          *time.Time `json:"active_oldest,omitempty"`
	ActiveNewest          *time.Time `json:"active_newest,omitempty"`
	HistorySize           int        `json:"history_size"`
	HistoryMax            int        `json:"history_max"`
	HistoryUtilizationPct float64    `json:"history_utilization_percent"`
	HistoryOldest         *time.Time `json:"history_oldest,omitempty"`
	HistoryNewest         *time.Time `json:"history_newest,omitempty"`
	LastProcessedAt       *time.Time `json:"last_processed_at,omitempty"`
}

func (b *DualBuffer) Utilization() Utilization {
	activePct := 0.0
	if b.maxActiveSize > 0 {
		activePct = float64(len(b.active)) / float64(b.maxActiveSize) * 100
	}
	historyPct := 0.0
	if b.maxHistorySize > 0 {
		historyPct = float64(len(b.history)) / float64(b.maxHistorySize) * 100
	}

	u := Utilization{
		ActiveSize:            len(b.active),
		ActiveMax:             b.maxActiveSize,
		ActiveUtilizationPct:  activePct,
		HistorySize:           len(b.history),
		HistoryMax:            b.maxHistorySize,
		HistoryUtilizationPct: historyPct,
	}

	if len(b.active) > 0 {
		oldest := b.active[0].Timestamp
		newest := b.active[len(b.active)-1].Timestamp
		u.ActiveOldest = &oldest
		u.ActiveNewest = &newest
	}
	if len(b.history) > 0 {
		oldest := b.history[0].Timestamp
		newest := b.history[len(b.history)-1].Timestamp
		u.HistoryOldest = &oldest
		u.HistoryNewest = &newest
		if last := b.history[len(b.history)-1].ProcessedAt; last != nil {
			u.LastProcessedAt = last
		}
	}

	return u
}

// LoadActive and LoadHistory restore buffer contents from persistence at
// startup, bypassing the overflow/promotion machinery (the persisted state
// is already assumed to satisfy I5).
func (b *DualBuffer) LoadActive(exps []models.Experience) {
	b.active = append([]models.Experience{}, exps...)
}

func (b *DualBuffer) LoadHistory(exps []models.Experience) {
	b.history = append([]models.Experience{}, exps...)
}
