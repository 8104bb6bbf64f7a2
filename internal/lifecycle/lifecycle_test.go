package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex-system/rl-engine/internal/config"
	"github.com/apex-system/rl-engine/internal/database"
	"github.com/apex-system/rl-engine/pkg/engine"
	"github.com/apex-system/rl-engine/pkg/models"
	"github.com/apex-system/rl-engine/pkg/rlservice"
)

func newTestManager(t *testing.T) (*Manager, *engine.Engine, *rlservice.Service, *database.Repository) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "rl_engine_test.db")
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	eng := engine.New(engine.Config{
		LearningRate:         0.5,
		DiscountFactor:       0.9,
		ExplorationRate:      0,
		MaxActiveBuffer:      50,
		MaxHistoryBuffer:     50,
		AutoProcessThreshold: 100,
		HistoryRetention:     time.Hour,
	})
	svc := rlservice.New(eng, repo, nil)

	cfg := config.Options{
		LearningRate:                 0.5,
		DiscountFactor:               0.9,
		ExplorationRate:              0,
		MaxActiveBuffer:              50,
		MaxHistoryBuffer:             50,
		AutoProcessThreshold:         100,
		HistoryRetentionHours:        1,
		AutoSaveIntervalSeconds:      3600,
		MemoryCleanupIntervalSeconds: 3600,
	}

	return NewManager(eng, svc, repo, cfg), eng, svc, repo
}

func TestManager_LoadState_EmptyStoreIsNonFatal(t *testing.T) {
	manager, eng, _, _ := newTestManager(t)
	manager.LoadState(context.Background())

	if len(eng.Strategies()) != 0 {
		t.Error("expected no strategies restored from an empty store")
	}
}

func TestManager_Shutdown_DrainsAndFlushes(t *testing.T) {
	manager, eng, _, repo := newTestManager(t)
	ctx := context.Background()

	if _, err := eng.AddExperience("ctx-a", models.ActionOptimizeForCTR, 0.4, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	manager.Shutdown(ctx)

	snap := eng.BufferSnapshot()
	if snap.ActiveSize != 0 {
		t.Errorf("expected shutdown to drain the active buffer, got %d remaining", snap.ActiveSize)
	}

	state, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error loading state: %v", err)
	}
	if len(state.History) != 1 {
		t.Errorf("expected 1 flushed history experience, got %d", len(state.History))
	}
}

func TestManager_OnFatal_InvokedOnInvariantViolation(t *testing.T) {
	manager, eng, _, _ := newTestManager(t)
	if _, err := eng.AddExperience("ctx-a", models.ActionOptimizeForCTR, 0.4, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng.ProcessExperiences()

	fired := make(chan error, 1)
	manager.OnFatal(func(err error) { fired <- err })

	strategies := eng.Strategies()
	strategy := strategies["ctx-a"]
	strategy.BestQValue = 999.0
	eng.LoadState(eng.QTableSnapshot(), map[string]*models.Strategy{"ctx-a": &strategy}, nil, eng.HistoryBuffer())

	manager.cleanup(context.Background())

	select {
	case err := <-fired:
		if err == nil {
			t.Error("expected a non-nil invariant error")
		}
	default:
		t.Fatal("expected OnFatal to be invoked for a divergent strategy")
	}
}

func TestManager_Shutdown_Idempotent(t *testing.T) {
	manager, _, _, _ := newTestManager(t)
	ctx := context.Background()

	manager.Shutdown(ctx)
	manager.Shutdown(ctx) // should not panic or double-flush incorrectly
}
