package rlservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apex-system/rl-engine/pkg/engine"
	"github.com/apex-system/rl-engine/pkg/models"
)

// fakeStore is an in-memory Store double for exercising persistence calls
// without a real database, in the teacher's own mocks/ style (see
// tests/mocks/colony_server_mock.go).
type fakeStore struct {
	mu               sync.Mutex
	savedStrategies  int
	savedQRows       int
	insertedExps     int
	bulkInsertCalls  int
	cleanupCalls     int
	failSaveStrategy bool
}

func (f *fakeStore) SaveStrategies(ctx context.Context, strategies map[string]models.Strategy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedStrategies++
	if f.failSaveStrategy {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeStore) SaveQRow(ctx context.Context, campaignContext string, row map[models.Action]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedQRows++
	return nil
}

func (f *fakeStore) InsertExperience(ctx context.Context, exp models.Experience) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertedExps++
	return nil
}

func (f *fakeStore) DeleteExperience(ctx context.Context, id string) error {
	return nil
}

func (f *fakeStore) BulkInsertHistory(ctx context.Context, exps []models.Experience) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkInsertCalls++
	return nil
}

func (f *fakeStore) CleanupHistory(ctx context.Context, before time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, eventType)
	return nil
}

func testConfig() engine.Config {
	return engine.Config{
		LearningRate:         0.5,
		DiscountFactor:       0.9,
		ExplorationRate:      0,
		MaxActiveBuffer:      50,
		MaxHistoryBuffer:     50,
		AutoProcessThreshold: 2,
		HistoryRetention:     time.Hour,
	}
}

func testContext() models.CampaignContext {
	return models.CampaignContext{
		StrategicContext: "cpa focused bidding",
		CampaignType:     models.CampaignTypeConversion,
		RiskAppetite:     models.RiskAppetiteModerate,
		Competition:      models.CompetitionModerate,
	}
}

func TestService_GenerateAction_ValidationError(t *testing.T) {
	svc := New(engine.New(testConfig()), nil, nil)

	_, err := svc.GenerateAction(GenerateActionRequest{
		Context: models.CampaignContext{}, // missing strategic_context
		Metrics: models.DefaultCampaignMetrics(),
	})
	if err == nil {
		t.Fatal("expected a validation error for an empty context")
	}
}

func TestService_GenerateAction_ReturnsDecision(t *testing.T) {
	svc := New(engine.New(testConfig()), nil, nil)

	resp, err := svc.GenerateAction(GenerateActionRequest{
		Context: testContext(),
		Metrics: models.DefaultCampaignMetrics(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action == "" {
		t.Error("expected a non-empty action")
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected a non-zero timestamp")
	}
}

func TestService_Learn_PersistsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	svc := New(engine.New(testConfig()), store, publisher)

	resp, err := svc.Learn(LearnRequest{
		Context: testContext().Normalize(),
		Action:  models.ActionOptimizeForCTR,
		Reward:  0.4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ExperienceID == "" {
		t.Error("expected a generated experience id")
	}

	// persistExperience runs synchronously in this implementation, so the
	// insert should already be reflected.
	store.mu.Lock()
	inserted := store.insertedExps
	store.mu.Unlock()
	if inserted != 1 {
		t.Errorf("expected 1 inserted experience, got %d", inserted)
	}
}

func TestService_Learn_AutoProcessesAtThreshold(t *testing.T) {
	store := &fakeStore{}
	svc := New(engine.New(testConfig()), store, nil)
	ctx := testContext().Normalize()

	if _, err := svc.Learn(LearnRequest{Context: ctx, Action: models.ActionOptimizeForCTR, Reward: 0.2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := svc.Learn(LearnRequest{Context: ctx, Action: models.ActionOptimizeForCTR, Reward: 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.AutoProcessed {
		t.Fatal("expected auto-processing to trigger at the configured threshold")
	}
	if resp.ProcessStats == nil || resp.ProcessStats.ProcessedCount != 2 {
		t.Errorf("expected 2 processed experiences, got %+v", resp.ProcessStats)
	}

	store.mu.Lock()
	bulk := store.bulkInsertCalls
	store.mu.Unlock()
	if bulk != 1 {
		t.Errorf("expected bulk_insert_history to be called once, got %d", bulk)
	}
}

func TestService_GetMetrics_SurfacesCountersAndHyperparameters(t *testing.T) {
	svc := New(engine.New(testConfig()), nil, nil)
	ctx := testContext().Normalize()

	if _, err := svc.Learn(LearnRequest{Context: ctx, Action: models.ActionOptimizeForCTR, Reward: 0.2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Process()

	metrics := svc.GetMetrics()
	if metrics.Counters.TotalLearningSessions != 1 {
		t.Errorf("expected total_learning_sessions=1, got %d", metrics.Counters.TotalLearningSessions)
	}
	if metrics.Hyperparameters.LearningRate != testConfig().LearningRate {
		t.Errorf("expected learning_rate to be surfaced, got %f", metrics.Hyperparameters.LearningRate)
	}
	if len(metrics.RewardHistory) != 1 {
		t.Errorf("expected 1 reward history entry, got %d", len(metrics.RewardHistory))
	}
}

func TestService_GetBuffer_SelectsKind(t *testing.T) {
	svc := New(engine.New(testConfig()), nil, nil)
	ctx := testContext().Normalize()
	if _, err := svc.Learn(LearnRequest{Context: ctx, Action: models.ActionOptimizeForCTR, Reward: 0.1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(svc.GetBuffer(BufferActive)) != 1 {
		t.Error("expected 1 entry in the active buffer")
	}
	if len(svc.GetBuffer(BufferHistory)) != 0 {
		t.Error("expected an empty history buffer before processing")
	}
}

func TestNewCorrelationID_ReturnsNonEmpty(t *testing.T) {
	if NewCorrelationID() == "" {
		t.Error("expected a non-empty correlation id")
	}
}
