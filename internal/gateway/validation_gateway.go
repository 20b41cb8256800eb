package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"loan-intake-be/internal/entity"
)

// requiredFields are the working-record keys the gateway demands before a
// typed application can be produced. Order matters only for reporting.
var requiredFields = []string{
	"applicant_name",
	"email",
	"annual_income",
	"loan_amount",
	"loan_term_months",
	"loan_purpose",
}

// optionalFields default to zero when absent.
var optionalFields = []string{
	"employment_years",
	"existing_debt",
}

// ValidationFailure carries every missing and ill-formed field in one result,
// so collection can ask for all corrections in a single round trip.
type ValidationFailure struct {
	MissingFields []string          `json:"missing_fields"`
	InvalidFields map[string]string `json:"invalid_fields"`
}

func (f *ValidationFailure) Reason() string {
	var parts []string
	if len(f.MissingFields) > 0 {
		parts = append(parts, "missing: "+strings.Join(f.MissingFields, ", "))
	}
	for _, field := range sortedKeys(f.InvalidFields) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, f.InvalidFields[field]))
	}
	return strings.Join(parts, "; ")
}

// Gateway converts an accumulated, untyped working record into an immutable
// LoanApplication. Validate is a pure function: no side effects, idempotent,
// and total (every defect is reported, not just the first).
type Gateway struct {
	validate *validator.Validate
}

func NewGateway() *Gateway {
	return &Gateway{validate: validator.New()}
}

// Validate returns either a typed application or a failure; never both.
// Callers own the resulting phase transition.
func (g *Gateway) Validate(working map[string]interface{}) (*entity.LoanApplication, *ValidationFailure) {
	failure := &ValidationFailure{InvalidFields: make(map[string]string)}

	for _, field := range requiredFields {
		if v, ok := working[field]; !ok || v == nil || v == "" {
			failure.MissingFields = append(failure.MissingFields, field)
		}
	}

	app := &entity.LoanApplication{
		ApplicantName:   asString(working, "applicant_name"),
		Email:           asString(working, "email"),
		LoanPurpose:     asString(working, "loan_purpose"),
		AnnualIncome:    asFloat(working, "annual_income", failure),
		LoanAmount:      asFloat(working, "loan_amount", failure),
		EmploymentYears: asFloat(working, "employment_years", failure),
		ExistingDebt:    asFloat(working, "existing_debt", failure),
		LoanTermMonths:  asInt(working, "loan_term_months", failure),
	}

	if err := g.validate.Struct(app); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, ve := range verrs {
				field := jsonField(ve.Field())
				// Absent fields are already reported as missing.
				if contains(failure.MissingFields, field) {
					continue
				}
				if _, dup := failure.InvalidFields[field]; !dup {
					failure.InvalidFields[field] = tagMessage(ve)
				}
			}
		}
	}

	if len(failure.MissingFields) > 0 || len(failure.InvalidFields) > 0 {
		return nil, failure
	}
	return app, nil
}

// RequiredFieldCount is used by the accumulator's completion signal.
func RequiredFieldCount() int { return len(requiredFields) }

// RequiredFields returns the gateway's required key set.
func RequiredFields() []string {
	return append([]string(nil), requiredFields...)
}

func asString(working map[string]interface{}, key string) string {
	if v, ok := working[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func asFloat(working map[string]interface{}, key string, failure *ValidationFailure) float64 {
	v, ok := working[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			failure.InvalidFields[key] = "not a number"
			return 0
		}
		return f
	default:
		failure.InvalidFields[key] = "not a number"
		return 0
	}
}

func asInt(working map[string]interface{}, key string, failure *ValidationFailure) int {
	v, ok := working[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			failure.InvalidFields[key] = "not an integer"
			return 0
		}
		return i
	default:
		failure.InvalidFields[key] = "not an integer"
		return 0
	}
}

// jsonField maps a struct field name to its working-record key.
func jsonField(structField string) string {
	switch structField {
	case "ApplicantName":
		return "applicant_name"
	case "Email":
		return "email"
	case "AnnualIncome":
		return "annual_income"
	case "LoanAmount":
		return "loan_amount"
	case "LoanTermMonths":
		return "loan_term_months"
	case "LoanPurpose":
		return "loan_purpose"
	case "EmploymentYears":
		return "employment_years"
	case "ExistingDebt":
		return "existing_debt"
	}
	return structField
}

func tagMessage(ve validator.FieldError) string {
	switch ve.Tag() {
	case "email":
		return "not a valid email address"
	case "gt":
		return "must be greater than " + ve.Param()
	case "gte":
		return "must be at least " + ve.Param()
	case "lte":
		return "must be at most " + ve.Param()
	case "min":
		return "too short"
	default:
		return "invalid (" + ve.Tag() + ")"
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
