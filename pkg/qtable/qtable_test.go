package qtable

import (
	"testing"

	"github.com/apex-system/rl-engine/pkg/models"
)

func TestQTable_Get_UnseenReturnsZero(t *testing.T) {
	q := New(0.1)
	if v := q.Get("unseen", models.ActionOptimizeForCTR); v != 0.0 {
		t.Errorf("expected 0.0 for an unseen cell, got %f", v)
	}
}

func TestQTable_Update_AppliesBellmanStep(t *testing.T) {
	q := New(0.5)

	first := q.Update("ctx", models.ActionOptimizeForCTR, 1.0)
	if first != 0.5 {
		t.Errorf("expected Q=0.5 after first update from 0, got %f", first)
	}

	second := q.Update("ctx", models.ActionOptimizeForCTR, 1.0)
	if second != 0.75 {
		t.Errorf("expected Q=0.75 after second update, got %f", second)
	}
}

func TestQTable_BestAction_ArgmaxOverCandidates(t *testing.T) {
	q := New(1.0)
	q.Update("ctx", models.ActionOptimizeForCTR, 0.2)
	q.Update("ctx", models.ActionReduceBidConservative, 0.9)

	action, val, found := q.BestAction("ctx", []models.Action{
		models.ActionOptimizeForCTR, models.ActionReduceBidConservative,
	})
	if !found {
		t.Fatal("expected BestAction to find a row")
	}
	if action != models.ActionReduceBidConservative {
		t.Errorf("expected best action reduce_bid_conservative, got %s", action)
	}
	if val != 0.9 {
		t.Errorf("expected best value 0.9, got %f", val)
	}
}

func TestQTable_BestAction_UnseenContext(t *testing.T) {
	q := New(0.1)
	_, _, found := q.BestAction("unseen", models.AllActions())
	if found {
		t.Error("expected found=false for an unseen context")
	}
}

func TestQTable_HasContext(t *testing.T) {
	q := New(0.1)
	if q.HasContext("ctx") {
		t.Error("unseen context should not be present")
	}
	q.Update("ctx", models.ActionOptimizeForCTR, 0.1)
	if !q.HasContext("ctx") {
		t.Error("context should be present after an update")
	}
}

func TestQTable_Snapshot_IsACopy(t *testing.T) {
	q := New(1.0)
	q.Update("ctx", models.ActionOptimizeForCTR, 0.5)

	snap := q.Snapshot()
	snap["ctx"][models.ActionOptimizeForCTR] = 99.0

	if got := q.Get("ctx", models.ActionOptimizeForCTR); got == 99.0 {
		t.Error("mutating the snapshot should not affect the live table")
	}
}

func TestQTable_Load_ReplacesContents(t *testing.T) {
	q := New(0.1)
	q.Update("stale", models.ActionOptimizeForCTR, 0.5)

	q.Load(map[string]map[models.Action]float64{
		"fresh": {models.ActionReduceBidConservative: 0.7},
	})

	if q.HasContext("stale") {
		t.Error("Load should replace the table, not merge into it")
	}
	if got := q.Get("fresh", models.ActionReduceBidConservative); got != 0.7 {
		t.Errorf("expected loaded value 0.7, got %f", got)
	}
}
