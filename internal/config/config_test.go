package config

import "testing"

func TestLoad_AppliesDefaultsWithNoFile(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.LearningRate != 0.1 {
		t.Errorf("expected default learning_rate 0.1, got %f", opts.LearningRate)
	}
	if opts.MaxActiveBuffer != 25 {
		t.Errorf("expected default max_active_buffer 25, got %d", opts.MaxActiveBuffer)
	}
	if opts.EventConsumerGroup != "rl-engine" {
		t.Errorf("expected default event_consumer_group rl-engine, got %s", opts.EventConsumerGroup)
	}
}

func TestOptions_Validate_RejectsOutOfRangeLearningRate(t *testing.T) {
	opts, _ := Load("")
	opts.LearningRate = 0
	if err := opts.Validate(); err == nil {
		t.Error("expected learning_rate=0 to fail validation")
	}

	opts.LearningRate = 1.5
	if err := opts.Validate(); err == nil {
		t.Error("expected learning_rate=1.5 to fail validation")
	}
}

func TestOptions_Validate_RejectsNonPositiveBuffers(t *testing.T) {
	opts, _ := Load("")
	opts.MaxActiveBuffer = 0
	if err := opts.Validate(); err == nil {
		t.Error("expected max_active_buffer=0 to fail validation")
	}
}

func TestOptions_Durations(t *testing.T) {
	opts, _ := Load("")
	opts.HistoryRetentionHours = 2
	opts.AutoSaveIntervalSeconds = 30
	opts.MemoryCleanupIntervalSeconds = 60

	if opts.HistoryRetention().Hours() != 2 {
		t.Errorf("expected 2h history retention, got %v", opts.HistoryRetention())
	}
	if opts.AutoSaveInterval().Seconds() != 30 {
		t.Errorf("expected 30s auto-save interval, got %v", opts.AutoSaveInterval())
	}
	if opts.MemoryCleanupInterval().Seconds() != 60 {
		t.Errorf("expected 60s memory cleanup interval, got %v", opts.MemoryCleanupInterval())
	}
}
