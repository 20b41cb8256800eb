package intake

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"loan-intake-be/internal/gateway"
)

// RulesExtractor is a deterministic fallback collaborator. It understands
// "field: value" pairs plus a handful of phrasings, which keeps the intake
// loop usable without any model running.
type RulesExtractor struct{}

func NewRulesExtractor() *RulesExtractor {
	return &RulesExtractor{}
}

var (
	pairPattern   = regexp.MustCompile(`(?i)\b([a-z_ ]+?)\s*[:=]\s*([^,;\n]+)`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	incomePattern = regexp.MustCompile(`(?i)(?:income|earn|salary)[^\d]*([\d][\d,.]*)`)
	amountPattern = regexp.MustCompile(`(?i)(?:borrow|loan of|loan amount|need)[^\d]*([\d][\d,.]*)`)
	termPattern   = regexp.MustCompile(`(?i)([\d]+)\s*(?:months|month)`)
	namePattern   = regexp.MustCompile(`(?i)(?:my name is|i am|i'm)\s+([A-Za-z][A-Za-z .'-]+)`)
)

// fieldAliases maps spoken names to working-record keys.
var fieldAliases = map[string]string{
	"name":             "applicant_name",
	"applicant name":   "applicant_name",
	"applicant_name":   "applicant_name",
	"email":            "email",
	"income":           "annual_income",
	"annual income":    "annual_income",
	"annual_income":    "annual_income",
	"amount":           "loan_amount",
	"loan amount":      "loan_amount",
	"loan_amount":      "loan_amount",
	"term":             "loan_term_months",
	"loan term":        "loan_term_months",
	"loan_term_months": "loan_term_months",
	"purpose":          "loan_purpose",
	"loan purpose":     "loan_purpose",
	"loan_purpose":     "loan_purpose",
	"employment years": "employment_years",
	"employment_years": "employment_years",
	"debt":             "existing_debt",
	"existing debt":    "existing_debt",
	"existing_debt":    "existing_debt",
}

var numericFields = map[string]bool{
	"annual_income":    true,
	"loan_amount":      true,
	"loan_term_months": true,
	"employment_years": true,
	"existing_debt":    true,
}

func (e *RulesExtractor) Extract(ctx context.Context, userTurn string, current map[string]interface{}) (*Extraction, error) {
	updates := make(map[string]interface{})

	for _, m := range pairPattern.FindAllStringSubmatch(userTurn, -1) {
		key, ok := fieldAliases[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok {
			continue
		}
		value := strings.TrimSpace(m[2])
		if numericFields[key] {
			if n, err := parseNumber(value); err == nil {
				updates[key] = n
			}
			continue
		}
		updates[key] = value
	}

	if m := emailPattern.FindString(userTurn); m != "" {
		updates["email"] = m
	}
	if m := namePattern.FindStringSubmatch(userTurn); m != nil {
		updates["applicant_name"] = strings.TrimSpace(m[1])
	}
	if m := incomePattern.FindStringSubmatch(userTurn); m != nil {
		if n, err := parseNumber(m[1]); err == nil {
			updates["annual_income"] = n
		}
	}
	if m := amountPattern.FindStringSubmatch(userTurn); m != nil {
		if n, err := parseNumber(m[1]); err == nil {
			updates["loan_amount"] = n
		}
	}
	if m := termPattern.FindStringSubmatch(userTurn); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			updates["loan_term_months"] = n
		}
	}

	missing := missingAfter(current, updates)
	ready := len(missing) == 0

	return &Extraction{
		Updates: updates,
		Ready:   ready,
		Reply:   buildReply(updates, missing),
	}, nil
}

func parseNumber(s string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	return strconv.ParseFloat(cleaned, 64)
}

func missingAfter(current, updates map[string]interface{}) []string {
	var missing []string
	for _, field := range gateway.RequiredFields() {
		if present(current[field]) || present(updates[field]) {
			continue
		}
		missing = append(missing, field)
	}
	return missing
}

func present(v interface{}) bool {
	return v != nil && v != ""
}

func buildReply(updates map[string]interface{}, missing []string) string {
	if len(missing) == 0 {
		return "Thanks, I have everything I need. You can submit the application for processing now."
	}
	var b strings.Builder
	if len(updates) > 0 {
		b.WriteString(fmt.Sprintf("Got it, I recorded %d field(s). ", len(updates)))
	}
	b.WriteString("I still need: " + strings.Join(missing, ", ") + ".")
	return b.String()
}
