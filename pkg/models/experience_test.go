package models

import "testing"

func TestNewExperience_Valid(t *testing.T) {
	exp, err := NewExperience("cpa_conversion_moderate_high", ActionReduceBidConservative, 0.4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp.ID == "" {
		t.Error("expected a generated id")
	}
	if exp.Processed {
		t.Error("a new experience should not be processed")
	}
	if exp.Timestamp.IsZero() {
		t.Error("expected a non-zero timestamp")
	}
}

func TestNewExperience_EmptyContext(t *testing.T) {
	_, err := NewExperience("", ActionReduceBidConservative, 0.0, nil)
	if err == nil {
		t.Fatal("expected error for empty context")
	}
	rlErr, ok := err.(*RLError)
	if !ok || rlErr.Kind != KindInvalidContext {
		t.Errorf("expected KindInvalidContext, got %v", err)
	}
}

func TestNewExperience_WhitespaceContext(t *testing.T) {
	_, err := NewExperience("   ", ActionReduceBidConservative, 0.0, nil)
	if err == nil {
		t.Fatal("expected error for whitespace-only context")
	}
	rlErr, ok := err.(*RLError)
	if !ok || rlErr.Kind != KindInvalidContext {
		t.Errorf("expected KindInvalidContext, got %v", err)
	}
}

func TestNewExperience_InvalidAction(t *testing.T) {
	_, err := NewExperience("ctx", Action("bogus"), 0.0, nil)
	if err == nil {
		t.Fatal("expected error for invalid action")
	}
	rlErr, ok := err.(*RLError)
	if !ok || rlErr.Kind != KindInvalidAction {
		t.Errorf("expected KindInvalidAction, got %v", err)
	}
}

func TestNewExperience_RewardOutOfRange(t *testing.T) {
	if _, err := NewExperience("ctx", ActionOptimizeForCTR, 1.5, nil); err == nil {
		t.Error("expected error for reward above 1.0")
	}
	if _, err := NewExperience("ctx", ActionOptimizeForCTR, -1.5, nil); err == nil {
		t.Error("expected error for reward below -1.0")
	}
}

func TestExperience_MarkProcessed(t *testing.T) {
	exp, err := NewExperience("ctx", ActionOptimizeForCTR, 0.2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := exp.Timestamp
	exp.MarkProcessed(now)
	if !exp.Processed {
		t.Fatal("expected Processed=true after MarkProcessed")
	}
	if exp.ProcessedAt == nil {
		t.Fatal("expected ProcessedAt to be set")
	}

	firstStamp := *exp.ProcessedAt
	exp.MarkProcessed(now.Add(1))
	if *exp.ProcessedAt != firstStamp {
		t.Error("MarkProcessed should be a no-op once already processed")
	}
}
