package models

import (
	"math"
	"testing"
)

func TestCampaignMetrics_Validate_Defaults(t *testing.T) {
	m := DefaultCampaignMetrics()
	if err := m.Validate(); err != nil {
		t.Errorf("default metrics should validate, got %v", err)
	}
}

func TestCampaignMetrics_Validate_Negative(t *testing.T) {
	m := DefaultCampaignMetrics()
	m.CTR = -1.0
	if err := m.Validate(); err == nil {
		t.Error("expected negative ctr to fail validation")
	}
}

func TestCampaignMetrics_Validate_NaNInf(t *testing.T) {
	m := DefaultCampaignMetrics()
	m.ROAS = math.NaN()
	if err := m.Validate(); err == nil {
		t.Error("expected NaN roas to fail validation")
	}

	m = DefaultCampaignMetrics()
	m.Spend = math.Inf(1)
	if err := m.Validate(); err == nil {
		t.Error("expected +Inf spend to fail validation")
	}
}
