package models

import (
	"math"

	"github.com/go-playground/validator/v10"
)

// CampaignMetrics is the numeric snapshot used for heuristic fallback and
// reward calculation. All fields are non-negative; NaN/Inf are rejected.
type CampaignMetrics struct {
	CTR               float64 `json:"ctr" validate:"gte=0"`
	CPM               float64 `json:"cpm" validate:"gte=0"`
	CPC               float64 `json:"cpc" validate:"gte=0"`
	Impressions       int64   `json:"impressions" validate:"gte=0"`
	Clicks            int64   `json:"clicks" validate:"gte=0"`
	Conversions       int64   `json:"conversions" validate:"gte=0"`
	Spend             float64 `json:"spend" validate:"gte=0"`
	Revenue           float64 `json:"revenue" validate:"gte=0"`
	ROAS              float64 `json:"roas" validate:"gte=0"`
	BudgetUtilization float64 `json:"budget_utilization" validate:"gte=0"`
	Reach             int64   `json:"reach" validate:"gte=0"`
	Frequency         float64 `json:"frequency" validate:"gte=0"`
}

// DefaultCampaignMetrics applies the §6 external-interface defaults.
func DefaultCampaignMetrics() CampaignMetrics {
	return CampaignMetrics{
		CTR:               2.0,
		CPM:               10.0,
		CPC:               0.5,
		Impressions:       10000,
		Clicks:            200,
		Conversions:       20,
		Spend:             100.0,
		Revenue:           200.0,
		ROAS:              2.0,
		BudgetUtilization: 0.8,
		Reach:             8000,
		Frequency:         1.25,
	}
}

var metricsValidator = validator.New()

// Validate enforces non-negativity (struct tags) plus the NaN/Inf rejection
// the struct tags alone cannot express.
func (m CampaignMetrics) Validate() error {
	if err := metricsValidator.Struct(m); err != nil {
		return NewInvalidMetricError(err.Error())
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"ctr", m.CTR}, {"cpm", m.CPM}, {"cpc", m.CPC}, {"spend", m.Spend},
		{"revenue", m.Revenue}, {"roas", m.ROAS},
		{"budget_utilization", m.BudgetUtilization}, {"frequency", m.Frequency},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return NewInvalidMetricError(f.name + " must be a finite number")
		}
	}

	return nil
}
