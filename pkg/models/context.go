package models

import (
	"fmt"
	"strings"
)

// CampaignType enumerates the goal a campaign is optimizing toward.
type CampaignType string

const (
	CampaignTypeConversion     CampaignType = "conversion"
	CampaignTypeAwareness      CampaignType = "awareness"
	CampaignTypeReach          CampaignType = "reach"
	CampaignTypeEngagement     CampaignType = "engagement"
	CampaignTypeTraffic        CampaignType = "traffic"
	CampaignTypeAppInstall     CampaignType = "app_install"
	CampaignTypeVideoView      CampaignType = "video_view"
	CampaignTypeLeadGeneration CampaignType = "lead_generation"
)

func AllCampaignTypes() []CampaignType {
	return []CampaignType{
		CampaignTypeConversion, CampaignTypeAwareness, CampaignTypeReach,
		CampaignTypeEngagement, CampaignTypeTraffic, CampaignTypeAppInstall,
		CampaignTypeVideoView, CampaignTypeLeadGeneration,
	}
}

func (c CampaignType) IsValid() bool {
	for _, valid := range AllCampaignTypes() {
		if c == valid {
			return true
		}
	}
	return false
}

// RiskAppetite enumerates how aggressively the campaign should pursue gains.
type RiskAppetite string

const (
	RiskAppetiteConservative RiskAppetite = "conservative"
	RiskAppetiteModerate     RiskAppetite = "moderate"
	RiskAppetiteAggressive   RiskAppetite = "aggressive"
)

func AllRiskAppetites() []RiskAppetite {
	return []RiskAppetite{RiskAppetiteConservative, RiskAppetiteModerate, RiskAppetiteAggressive}
}

func (r RiskAppetite) IsValid() bool {
	for _, valid := range AllRiskAppetites() {
		if r == valid {
			return true
		}
	}
	return false
}

// Competition enumerates the competitive pressure in the campaign's market.
type Competition string

const (
	CompetitionLow      Competition = "low"
	CompetitionModerate Competition = "moderate"
	CompetitionHigh     Competition = "high"
)

func AllCompetitionLevels() []Competition {
	return []Competition{CompetitionLow, CompetitionModerate, CompetitionHigh}
}

func (c Competition) IsValid() bool {
	for _, valid := range AllCompetitionLevels() {
		if c == valid {
			return true
		}
	}
	return false
}

// CampaignContext describes the decision situation a generate_action call
// reasons about. Only StrategicContext, CampaignType, RiskAppetite, and
// Competition participate in Normalize(); the heuristic fallback reads only
// StrategicContext, and the remaining fields are descriptive.
type CampaignContext struct {
	StrategicContext string       `json:"strategic_context"`
	CampaignType     CampaignType `json:"campaign_type"`
	RiskAppetite     RiskAppetite `json:"risk_appetite"`
	Competition      Competition  `json:"competition"`
	TimeOfDay        string       `json:"time_of_day"`
	DayOfWeek        string       `json:"day_of_week"`
	Seasonality      string       `json:"seasonality"`
	MarketConditions string       `json:"market_conditions"`
	BrazilRegion     string       `json:"brazil_region"`
}

// Normalize produces the deterministic canonical string used as the
// Q-table row key and strategy index key. It is lossy by design: contexts
// that differ only in time_of_day, seasonality, etc. collapse to the same
// learned cell.
func (c CampaignContext) Normalize() string {
	return fmt.Sprintf("%s_%s_%s_%s",
		strings.TrimSpace(c.StrategicContext),
		c.CampaignType,
		c.RiskAppetite,
		c.Competition,
	)
}

// Validate checks the context against the enumerations and the non-empty
// strategic_context invariant (I6).
func (c CampaignContext) Validate() error {
	var errs ValidationErrors

	errs.AddIf(strings.TrimSpace(c.StrategicContext) == "", "StrategicContext", c.StrategicContext,
		"strategic_context cannot be empty")
	errs.AddIf(!c.CampaignType.IsValid(), "CampaignType", c.CampaignType,
		"campaign_type must be a recognized value")
	errs.AddIf(!c.RiskAppetite.IsValid(), "RiskAppetite", c.RiskAppetite,
		"risk_appetite must be a recognized value")
	errs.AddIf(!c.Competition.IsValid(), "Competition", c.Competition,
		"competition must be a recognized value")

	if errs.HasErrors() {
		return NewInvalidContextError(errs.Error())
	}
	return nil
}

// DefaultCampaignContext applies the §6 external-interface defaults for
// optional context fields.
func DefaultCampaignContext(strategicContext string) CampaignContext {
	return CampaignContext{
		StrategicContext: strategicContext,
		CampaignType:     CampaignTypeConversion,
		RiskAppetite:     RiskAppetiteModerate,
		Competition:      CompetitionModerate,
		TimeOfDay:        "business_hours",
		DayOfWeek:        "weekday",
		Seasonality:      "normal",
		MarketConditions: "stable",
		BrazilRegion:     "southeast",
	}
}
