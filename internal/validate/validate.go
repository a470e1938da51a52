// Package validate gate-keeps legacy-shaped client records before they are
// mapped and persisted. Validation failures are reported in structured
// results, never returned as errors; WithRecordValidation is the single
// fail-fast wrapper.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

type Result struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type InvalidRecord struct {
	Index  int            `json:"index"`
	Record map[string]any `json:"record"`
	Errors []string       `json:"errors"`
}

type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

type SetResult struct {
	Result
	ValidRecords   []map[string]any `json:"validRecords"`
	InvalidRecords []InvalidRecord  `json:"invalidRecords"`
	Stats          Stats            `json:"stats"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type rangeCheck struct {
	field string
	min   float64
	max   float64
	label string
}

// All checks run independently; nothing short-circuits, so a caller sees the
// complete error set in one pass.
var rangeChecks = []rangeCheck{
	{field: "health_score", min: 0, max: 100, label: "health_score must be a number between 0 and 100"},
	{field: "mrr", min: 0, max: -1, label: "mrr must be a non-negative number"},
	{field: "usage_30d", min: 0, max: 100, label: "usage_30d must be a number between 0 and 100"},
	{field: "nps_score", min: 0, max: 10, label: "nps_score must be a number between 0 and 10"},
	{field: "contract_value", min: 0, max: -1, label: "contract_value must be a non-negative number"},
}

var dateFields = []string{"renewal_date", "contract_start_date", "contract_end_date"}

// ValidateRecord checks a single legacy-shaped record. Errors block import;
// warnings never affect IsValid.
func ValidateRecord(record map[string]any) Result {
	result := Result{Errors: []string{}, Warnings: []string{}}
	if record == nil {
		result.Errors = append(result.Errors, "Record must be an object")
		return result
	}

	if !hasStringValue(record, "id") && !hasStringValue(record, "client_id") {
		result.Errors = append(result.Errors, "Client ID is required and must be a string")
	}
	if !hasStringValue(record, "company_name") && !hasStringValue(record, "client_name") {
		result.Errors = append(result.Errors, "Company name is required (company_name or client_name)")
	}

	for _, check := range rangeChecks {
		value, ok := record[check.field]
		if !ok || value == nil {
			continue
		}
		number, numeric := canonical.AsNumber(value)
		if !numeric || number < check.min || (check.max >= 0 && number > check.max) {
			result.Errors = append(result.Errors, check.label)
		}
	}

	for _, field := range dateFields {
		value, ok := record[field]
		if !ok || value == nil {
			continue
		}
		if _, parsed := canonical.AsDate(value); !parsed {
			result.Errors = append(result.Errors, field+" is not a valid date")
		}
	}

	if value := stringValue(record, "churn_risk"); value != "" && !contains(canonical.ChurnRiskValues, strings.ToLower(value)) {
		result.Errors = append(result.Errors, "churn_risk must be one of: "+strings.Join(canonical.ChurnRiskValues, ", "))
	}
	if value := stringValue(record, "subscription_status"); value != "" && !contains(canonical.SubscriptionStatusValues, strings.ToLower(value)) {
		result.Errors = append(result.Errors, "subscription_status must be one of: "+strings.Join(canonical.SubscriptionStatusValues, ", "))
	}

	for _, field := range []string{"call_momentum", "login_momentum"} {
		if value := stringValue(record, field); value != "" && !contains(canonical.MomentumValues, strings.ToLower(value)) {
			result.Warnings = append(result.Warnings, field+" should be one of: "+strings.Join(canonical.MomentumValues, ", "))
		}
	}

	if email := stringValue(record, "contact_email"); email != "" && !emailPattern.MatchString(email) {
		result.Warnings = append(result.Warnings, "contact_email does not look like a valid email address")
	}

	if isAbsent(record, "mrr") && isAbsent(record, "contract_value") {
		result.Warnings = append(result.Warnings, "neither mrr nor contract_value is set; revenue metrics will read as zero")
	}
	if isAbsent(record, "health_score") {
		result.Warnings = append(result.Warnings, "health_score is missing; client will be counted at risk")
	}
	if isAbsent(record, "renewal_date") {
		result.Warnings = append(result.Warnings, "renewal_date is missing; client will not appear in renewal planning")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ValidateRecordSet validates each record independently and partitions the
// input. Every error message is prefixed with its 1-based record index.
func ValidateRecordSet(records []map[string]any) SetResult {
	result := SetResult{
		Result:         Result{Errors: []string{}, Warnings: []string{}},
		ValidRecords:   []map[string]any{},
		InvalidRecords: []InvalidRecord{},
	}
	if records == nil {
		result.Errors = append(result.Errors, "Expected an array of records")
		return result
	}

	for index, record := range records {
		recordResult := ValidateRecord(record)
		for _, message := range recordResult.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("Record %d: %s", index+1, message))
		}
		for _, message := range recordResult.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Record %d: %s", index+1, message))
		}
		if recordResult.IsValid {
			result.ValidRecords = append(result.ValidRecords, record)
		} else {
			result.InvalidRecords = append(result.InvalidRecords, InvalidRecord{
				Index:  index,
				Record: record,
				Errors: recordResult.Errors,
			})
		}
	}

	result.Stats = Stats{
		Total:   len(records),
		Valid:   len(result.ValidRecords),
		Invalid: len(result.InvalidRecords),
	}
	result.IsValid = len(result.Errors) == 0
	return result
}

var numericFields = []string{"health_score", "mrr", "usage_30d", "nps_score", "contract_value", "ltv"}

var trimmedFields = []string{"company_name", "client_name", "churn_risk", "subscription_status"}

// SanitizeRecord returns a normalized copy of the record: nil values are
// dropped, numeric strings are coerced for the known numeric fields, the
// known string fields are trimmed, and contact_email is lowercased. The
// input is never mutated; coercion failures leave the value as-is.
func SanitizeRecord(record map[string]any) map[string]any {
	sanitized := make(map[string]any, len(record))
	for key, value := range record {
		if value == nil {
			continue
		}
		sanitized[key] = value
	}

	for _, field := range numericFields {
		if text, ok := sanitized[field].(string); ok {
			if number, numeric := canonical.AsNumber(text); numeric {
				sanitized[field] = number
			}
		}
	}
	for _, field := range trimmedFields {
		if text, ok := sanitized[field].(string); ok {
			sanitized[field] = strings.TrimSpace(text)
		}
	}
	if email, ok := sanitized["contact_email"].(string); ok {
		sanitized["contact_email"] = strings.ToLower(strings.TrimSpace(email))
	}

	return sanitized
}

// WithRecordValidation runs fn only if the record passes validation,
// returning an aggregated error otherwise. This is the one place validation
// failures cross the boundary as an error.
func WithRecordValidation(record map[string]any, fn func(map[string]any) error) error {
	result := ValidateRecord(record)
	if !result.IsValid {
		return fmt.Errorf("record validation failed: %s", strings.Join(result.Errors, "; "))
	}
	return fn(record)
}

func hasStringValue(record map[string]any, key string) bool {
	return stringValue(record, key) != ""
}

func stringValue(record map[string]any, key string) string {
	text, ok := record[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func isAbsent(record map[string]any, key string) bool {
	value, ok := record[key]
	return !ok || value == nil
}

func contains(values []string, candidate string) bool {
	for _, value := range values {
		if value == candidate {
			return true
		}
	}
	return false
}
