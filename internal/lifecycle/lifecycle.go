// Package lifecycle wires startup load order, the periodic auto-save and
// memory-cleanup tickers, and graceful shutdown flush (C8). Grounded on
// the teacher's cooperative-timer pattern in its simulation runner loop,
// adapted from a fixed-iteration simulation clock to open-ended periodic
// background tasks driven by a cancellation context.
package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/apex-system/rl-engine/internal/config"
	"github.com/apex-system/rl-engine/internal/database"
	"github.com/apex-system/rl-engine/pkg/engine"
	"github.com/apex-system/rl-engine/pkg/rlservice"
)

// Manager owns the periodic tickers and the shutdown flush, and is itself
// idempotent under repeated Shutdown calls (P8).
type Manager struct {
	eng  *engine.Engine
	svc  *rlservice.Service
	repo *database.Repository
	cfg  config.Options

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once

	onFatal func(error)
}

// OnFatal registers the callback invoked when a periodic invariant check
// (§7 — "internal invariant violation: fatal") finds the in-memory state
// inconsistent. The callback is expected to cancel the context passed to
// Start, so the caller's main loop unblocks and proceeds to Shutdown.
func (m *Manager) OnFatal(fn func(error)) {
	m.onFatal = fn
}

func NewManager(eng *engine.Engine, svc *rlservice.Service, repo *database.Repository, cfg config.Options) *Manager {
	return &Manager{eng: eng, svc: svc, repo: repo, cfg: cfg}
}

// LoadState reconstructs the engine's in-memory state from the durable
// store at startup. A load failure is non-fatal per §7: the engine starts
// with an empty in-memory state and a warning is logged. The caller may
// still abort startup itself if the repository's own connectivity check
// (performed by database.NewDatabase) already failed before this is
// reached.
func (m *Manager) LoadState(ctx context.Context) {
	state, err := m.repo.LoadAll(ctx)
	if err != nil {
		log.Printf("[lifecycle] load_all failed, starting from empty in-memory state: %v", err)
		return
	}
	m.eng.LoadState(state.QTable, state.Strategies, state.Active, state.History)
	log.Printf("[lifecycle] restored %d q-table rows, %d strategies, %d active, %d history",
		len(state.QTable), len(state.Strategies), len(state.Active), len(state.History))
}

// Start launches the auto_save and memory_cleanup tickers as background
// goroutines. It returns immediately; call Shutdown to stop them.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel

	m.wg.Add(2)
	go m.runAutoSave(ctx)
	go m.runMemoryCleanup(ctx)
}

func (m *Manager) runAutoSave(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.AutoSaveInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.flush(ctx)
		}
	}
}

func (m *Manager) runMemoryCleanup(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.MemoryCleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx)
		}
	}
}

// flush snapshots strategies and the Q-table under the engine lock, then
// writes them asynchronously — the §5 "acquire lock, mutate/copy, release,
// then I/O" pattern applied to the periodic auto-save tick.
func (m *Manager) flush(ctx context.Context) {
	strategies := m.eng.Strategies()
	qrows := m.eng.QTableSnapshot()

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.repo.SaveStrategies(writeCtx, strategies); err != nil {
		log.Printf("[lifecycle] auto-save save_strategies failed, will retry next tick: %v", err)
	}
	for context, row := range qrows {
		if err := m.repo.SaveQRow(writeCtx, context, row); err != nil {
			log.Printf("[lifecycle] auto-save save_q_row(%s) failed: %v", context, err)
		}
	}
}

// cleanup runs prune_history under the engine lock, then cleanup_history
// against the durable store (§5 memory_cleanup task).
func (m *Manager) cleanup(ctx context.Context) {
	now := time.Now().UTC()
	removed := m.eng.PruneHistory(now)
	if removed > 0 {
		log.Printf("[lifecycle] pruned %d aged-out history entries", removed)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	before := now.Add(-m.cfg.HistoryRetention())
	if err := m.repo.CleanupHistory(writeCtx, before); err != nil {
		log.Printf("[lifecycle] cleanup_history failed: %v", err)
	}

	if err := m.eng.CheckInvariants(); err != nil {
		log.Printf("[lifecycle] invariant violation detected, flushing and stopping writes: %v", err)
		m.flush(writeCtx)
		if m.onFatal != nil {
			m.onFatal(err)
		}
	}
}

// Shutdown stops the periodic tickers and performs a final state flush.
// It is idempotent: calling it twice produces the same persisted state as
// calling it once (P8), since flush writes a full-replace strategies
// snapshot plus upsert-by-key Q-table rows, with no accumulating side
// effect.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		if stats := m.svc.Process(); stats.ProcessedCount > 0 {
			log.Printf("[lifecycle] drained %d pending experiences on shutdown", stats.ProcessedCount)
		}
		m.flush(ctx)
		log.Println("[lifecycle] shutdown flush complete")
	})
}
