package canonical

import (
	"strconv"
	"strings"
	"time"
)

// Legacy imports and older documents carry flat snake_case keys next to the
// canonical nested paths, so every logical field resolves through an ordered
// fallback list rather than a single lookup.

var companyNamePaths = []string{"company.name", "companyName", "company_name", "client_name"}

var renewalDatePaths = []string{"renewal.date", "renewal_date", "contract_end_date"}

var healthScorePaths = []string{"health.score", "health_score"}

var churnRiskPaths = []string{"churn.risk", "churn_risk"}

var mrrPaths = []string{"mrr"}

var contractValuePaths = []string{"contract.value", "contract_value"}

var contactNamePaths = []string{"contact.name", "contact_name"}

var csmOwnerPaths = []string{"csm.owner", "csm_owner"}

var clientIDPaths = []string{"client.id", "client_id", "id"}

func resolveString(r Record, paths []string) string {
	for _, path := range paths {
		value, ok := r.Get(path)
		if !ok {
			continue
		}
		if text, ok := value.(string); ok {
			trimmed := strings.TrimSpace(text)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func resolveNumber(r Record, paths []string) (float64, bool) {
	for _, path := range paths {
		value, ok := r.Get(path)
		if !ok {
			continue
		}
		if number, ok := AsNumber(value); ok {
			return number, true
		}
	}
	return 0, false
}

func ResolveClientID(r Record) string { return resolveString(r, clientIDPaths) }

func ResolveCompanyName(r Record) string { return resolveString(r, companyNamePaths) }

func ResolveContactName(r Record) string { return resolveString(r, contactNamePaths) }

func ResolveCSMOwner(r Record) string { return resolveString(r, csmOwnerPaths) }

func ResolveChurnRisk(r Record) string {
	return strings.ToLower(resolveString(r, churnRiskPaths))
}

func ResolveHealthScore(r Record) (float64, bool) { return resolveNumber(r, healthScorePaths) }

func ResolveMRR(r Record) (float64, bool) { return resolveNumber(r, mrrPaths) }

func ResolveContractValue(r Record) (float64, bool) { return resolveNumber(r, contractValuePaths) }

// ResolveRenewalDate checks renewal.date, then the legacy renewal_date and
// contract_end_date keys, and returns the first value that parses.
func ResolveRenewalDate(r Record) (time.Time, bool) {
	for _, path := range renewalDatePaths {
		value, ok := r.Get(path)
		if !ok {
			continue
		}
		if parsed, ok := AsDate(value); ok {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// AsNumber coerces numeric values and numeric strings; anything else is
// reported as not-a-number rather than an error.
func AsNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

var dateFormats = []string{"2006-01-02", time.RFC3339, "01/02/2006", "1/2/2006", "2006/01/02", "01-02-2006"}

func AsDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false
		}
		for _, format := range dateFormats {
			parsed, err := time.Parse(format, raw)
			if err != nil {
				continue
			}
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
