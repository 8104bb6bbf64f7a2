package models

import "testing"

func TestValidationErrors_AddIf(t *testing.T) {
	var errs ValidationErrors
	errs.AddIf(true, "Field", "value", "should be added")
	errs.AddIf(false, "Other", "value", "should not be added")

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !errs.HasErrors() {
		t.Error("expected HasErrors() to be true")
	}
}

func TestValidationErrors_Error_MultipleSummarized(t *testing.T) {
	var errs ValidationErrors
	errs.Add("A", 1, "bad a")
	errs.Add("B", 2, "bad b")

	msg := errs.Error()
	if msg == "" {
		t.Fatal("expected a non-empty summary")
	}
}
