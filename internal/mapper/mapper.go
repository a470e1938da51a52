// Package mapper bridges arbitrary legacy import schemas to the canonical
// client schema: it suggests column mappings from a synonym table, checks
// required-field presence, and transforms raw rows into canonical records.
package mapper

import (
	"sort"
	"strings"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

// FieldMapping maps a legacy field name to a canonical dot path. An empty
// path means the column is not imported.
type FieldMapping map[string]string

// synonyms maps normalized legacy field names to canonical paths. Loaded
// once, never mutated.
var synonyms = map[string]string{
	// Client id
	"client_id":   "client.id",
	"id":          "client.id",
	"account_id":  "client.id",
	"customer_id": "client.id",
	"external_id": "client.id",

	// Company
	"company_name": "company.name",
	"company":      "company.name",
	"account_name": "company.name",
	"client_name":  "company.name",
	"organization": "company.name",

	// Contact
	"contact_name":    "contact.name",
	"contact":         "contact.name",
	"primary_contact": "contact.name",
	"contact_email":   "contact.email",
	"email":           "contact.email",
	"email_address":   "contact.email",

	// Contract dates
	"contract_start_date": "contract.startDate",
	"start_date":          "contract.startDate",
	"contract_start":      "contract.startDate",
	"contract_end_date":   "contract.endDate",
	"end_date":            "contract.endDate",
	"contract_end":        "contract.endDate",

	// Renewal
	"renewal_date":     "renewal.date",
	"renewal":          "renewal.date",
	"next_renewal":     "renewal.date",
	"next_review_date": "renewal.date",

	// Revenue
	"mrr":                       "mrr",
	"monthly_recurring_revenue": "mrr",
	"monthly_revenue":           "mrr",
	"revenue":                   "mrr",
	"monthly_value":             "mrr",
	"ltv":                       "ltv",
	"lifetime_value":            "ltv",
	"total_value":               "ltv",
	"contract_value":            "contract.value",
	"total_contract_value":      "contract.value",

	// Tenure
	"subscribed_months": "subscribedMonths",
	"months_subscribed": "subscribedMonths",
	"tenure_months":     "subscribedMonths",

	// Health and usage
	"health_score":  "health.score",
	"health":        "health.score",
	"score":         "health.score",
	"usage_30d":     "usage.last30d",
	"usage":         "usage.last30d",
	"usage_percent": "usage.last30d",

	// Risk and satisfaction
	"churn_risk":  "churn.risk",
	"risk":        "churn.risk",
	"risk_level":  "churn.risk",
	"nps_score":   "nps.score",
	"nps":         "nps.score",
	"nps_comment": "nps.comment",

	// Ownership
	"csm_owner":     "csm.owner",
	"csm":           "csm.owner",
	"account_owner": "csm.owner",
	"owner":         "csm.owner",
}

func normalizeFieldName(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(lowered)
}

// SuggestMapping returns the canonical path for a legacy field name, or
// ok=false when no synonym matches. Callers must not auto-apply a mapping
// for unmatched columns.
func SuggestMapping(legacyField string) (string, bool) {
	path, ok := synonyms[normalizeFieldName(legacyField)]
	return path, ok
}

type PresenceReport struct {
	HasAll    bool     `json:"hasAll"`
	Missing   []string `json:"missing"`
	Available []string `json:"available"`
}

// CheckFieldPresence inspects only the first record of the dataset and
// reports which required paths resolve to a value there. An empty dataset
// reports every path missing.
func CheckFieldPresence(requiredPaths []string, sample []canonical.Record) PresenceReport {
	report := PresenceReport{Missing: []string{}, Available: []string{}}
	if len(sample) == 0 {
		report.Missing = append(report.Missing, requiredPaths...)
		return report
	}

	first := sample[0]
	for _, path := range requiredPaths {
		if first.Has(path) {
			report.Available = append(report.Available, path)
		} else {
			report.Missing = append(report.Missing, path)
		}
	}
	report.HasAll = len(report.Missing) == 0
	return report
}

// TransformToCanonical applies the mapping to every raw record, writing
// mapped values into nested canonical records. Null and empty-string values
// are dropped; unmapped legacy fields are dropped silently. Output order
// matches input order.
func TransformToCanonical(rawRecords []map[string]any, mapping FieldMapping) []canonical.Record {
	records := make([]canonical.Record, 0, len(rawRecords))
	for _, raw := range rawRecords {
		record := canonical.Record{}
		for legacyField, path := range mapping {
			if path == "" {
				continue
			}
			value, ok := raw[legacyField]
			if !ok || value == nil {
				continue
			}
			if text, isString := value.(string); isString && text == "" {
				continue
			}
			record.Set(path, value)
		}
		records = append(records, record)
	}
	return records
}

// DuplicateTargets reports canonical paths that more than one legacy field
// maps to. The mapper itself does not prevent duplicates; the import
// orchestrator rejects mappings that have any.
func DuplicateTargets(mapping FieldMapping) []string {
	counts := map[string]int{}
	for _, path := range mapping {
		if path == "" {
			continue
		}
		counts[path]++
	}
	duplicates := make([]string, 0)
	for path, count := range counts {
		if count > 1 {
			duplicates = append(duplicates, path)
		}
	}
	sort.Strings(duplicates)
	return duplicates
}
