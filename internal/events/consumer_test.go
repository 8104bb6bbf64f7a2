package events

import (
	"errors"
	"testing"

	"github.com/apex-system/rl-engine/pkg/models"
)

func TestField_MissingKeyReturnsEmpty(t *testing.T) {
	values := map[string]interface{}{"context": "ctx-a"}
	if field(values, "missing") != "" {
		t.Error("expected empty string for a missing key")
	}
	if field(values, "context") != "ctx-a" {
		t.Errorf("expected ctx-a, got %s", field(values, "context"))
	}
}

func TestDecodeMetrics_FallsBackToDefaultsWhenAbsent(t *testing.T) {
	metrics := decodeMetrics(map[string]interface{}{})
	if metrics != models.DefaultCampaignMetrics() {
		t.Error("expected default metrics when no metrics field is present")
	}
}

func TestDecodeMetrics_ParsesJSONPayload(t *testing.T) {
	values := map[string]interface{}{
		"metrics": `{"ctr":5.5,"cpm":1,"cpc":1,"impressions":1,"clicks":1,"conversions":1,"spend":1,"revenue":1,"roas":4.0,"budget_utilization":0.5,"reach":1,"frequency":1}`,
	}
	metrics := decodeMetrics(values)
	if metrics.CTR != 5.5 {
		t.Errorf("expected ctr=5.5, got %f", metrics.CTR)
	}
	if metrics.ROAS != 4.0 {
		t.Errorf("expected roas=4.0, got %f", metrics.ROAS)
	}
}

func TestClampReward_BoundsToUnitRange(t *testing.T) {
	if clampReward(2.0) != 1.0 {
		t.Error("expected reward above 1.0 to clamp to 1.0")
	}
	if clampReward(-2.0) != -1.0 {
		t.Error("expected reward below -1.0 to clamp to -1.0")
	}
	if clampReward(0.3) != 0.3 {
		t.Error("expected an in-range reward to pass through unchanged")
	}
}

func TestContainsBusyGroup(t *testing.T) {
	if !containsBusyGroup("BUSYGROUP Consumer Group name already exists") {
		t.Error("expected BUSYGROUP marker to be detected")
	}
	if containsBusyGroup("some other error") {
		t.Error("did not expect a false positive on an unrelated error")
	}
}

func TestIsBusyGroupErr(t *testing.T) {
	if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("expected a BUSYGROUP error to be recognized")
	}
	if isBusyGroupErr(errors.New("connection refused")) {
		t.Error("did not expect a non-BUSYGROUP error to be recognized")
	}
	if isBusyGroupErr(nil) {
		t.Error("expected nil to not be a BUSYGROUP error")
	}
}
