package models

import "testing"

func TestCampaignContext_Normalize(t *testing.T) {
	a := CampaignContext{
		StrategicContext: "cpa optimization",
		CampaignType:     CampaignTypeConversion,
		RiskAppetite:     RiskAppetiteModerate,
		Competition:      CompetitionHigh,
	}
	b := a
	b.TimeOfDay = "morning"
	b.Seasonality = "holiday"

	if a.Normalize() != b.Normalize() {
		t.Errorf("contexts differing only in descriptive fields should normalize equally: %s != %s",
			a.Normalize(), b.Normalize())
	}

	c := a
	c.Competition = CompetitionLow
	if a.Normalize() == c.Normalize() {
		t.Error("contexts differing in competition should normalize differently")
	}
}

func TestCampaignContext_Validate(t *testing.T) {
	valid := CampaignContext{
		StrategicContext: "roas focus",
		CampaignType:     CampaignTypeConversion,
		RiskAppetite:     RiskAppetiteModerate,
		Competition:      CompetitionModerate,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid context to pass, got %v", err)
	}

	empty := valid
	empty.StrategicContext = "   "
	if err := empty.Validate(); err == nil {
		t.Error("expected empty strategic_context to fail validation")
	}

	badType := valid
	badType.CampaignType = CampaignType("not_real")
	if err := badType.Validate(); err == nil {
		t.Error("expected unrecognized campaign_type to fail validation")
	}
}

func TestDefaultCampaignContext(t *testing.T) {
	ctx := DefaultCampaignContext("cpa bid management")
	if err := ctx.Validate(); err != nil {
		t.Errorf("default context should be valid, got %v", err)
	}
	if ctx.StrategicContext != "cpa bid management" {
		t.Errorf("expected strategic_context to be preserved, got %s", ctx.StrategicContext)
	}
}
