package gateway

import (
	"reflect"
	"testing"
)

func validWorking() map[string]interface{} {
	return map[string]interface{}{
		"applicant_name":   "Ada Lovelace",
		"email":            "ada@example.com",
		"annual_income":    85000.0,
		"loan_amount":      20000.0,
		"loan_term_months": 48,
		"loan_purpose":     "car",
	}
}

func TestValidateMissingIncome(t *testing.T) {
	working := validWorking()
	delete(working, "annual_income")

	app, failure := NewGateway().Validate(working)
	if app != nil {
		t.Fatal("expected no application for incomplete record")
	}
	if failure == nil {
		t.Fatal("expected a failure")
	}
	if !reflect.DeepEqual(failure.MissingFields, []string{"annual_income"}) {
		t.Errorf("MissingFields = %v, want [annual_income]", failure.MissingFields)
	}
}

func TestValidateReportsAllDefects(t *testing.T) {
	working := validWorking()
	delete(working, "applicant_name")
	working["email"] = "not-an-email"
	working["loan_term_months"] = "abc"

	app, failure := NewGateway().Validate(working)
	if app != nil {
		t.Fatal("expected validation to fail")
	}
	if len(failure.MissingFields) != 1 || failure.MissingFields[0] != "applicant_name" {
		t.Errorf("MissingFields = %v", failure.MissingFields)
	}
	if _, ok := failure.InvalidFields["email"]; !ok {
		t.Error("email defect not reported")
	}
	if _, ok := failure.InvalidFields["loan_term_months"]; !ok {
		t.Error("loan_term_months defect not reported")
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	working := validWorking()
	working["email"] = "broken"
	delete(working, "loan_purpose")

	g := NewGateway()
	_, first := g.Validate(working)
	_, second := g.Validate(working)

	if !reflect.DeepEqual(first.MissingFields, second.MissingFields) {
		t.Errorf("missing fields differ between runs: %v vs %v", first.MissingFields, second.MissingFields)
	}
	if !reflect.DeepEqual(first.InvalidFields, second.InvalidFields) {
		t.Errorf("invalid fields differ between runs: %v vs %v", first.InvalidFields, second.InvalidFields)
	}
}

func TestValidateSuccess(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		wantErr bool
	}{
		{"all typed", func(m map[string]interface{}) {}, false},
		{"numbers as strings", func(m map[string]interface{}) {
			m["annual_income"] = "85000"
			m["loan_term_months"] = "48"
		}, false},
		{"negative income", func(m map[string]interface{}) {
			m["annual_income"] = -5.0
		}, true},
		{"term too short", func(m map[string]interface{}) {
			m["loan_term_months"] = 3
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			working := validWorking()
			tt.mutate(working)

			app, failure := NewGateway().Validate(working)
			if tt.wantErr {
				if failure == nil {
					t.Fatal("expected failure")
				}
				return
			}
			if failure != nil {
				t.Fatalf("unexpected failure: %+v", failure)
			}
			if app.AnnualIncome != 85000 || app.LoanTermMonths != 48 {
				t.Errorf("coercion wrong: %+v", app)
			}
		})
	}
}
