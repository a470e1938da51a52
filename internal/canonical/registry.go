package canonical

import "strings"

// Field describes one entry of the canonical schema: its dot path, the
// snake_case CSV column derived from it, and whether an import needs it.
type Field struct {
	Path     string
	Column   string
	Label    string
	Required bool
	Example  string
}

// Fields is the canonical field registry, in template column order.
var Fields = []Field{
	{Path: "client.id", Column: "client_id", Label: "Client ID", Required: true, Example: "acme-001"},
	{Path: "company.name", Column: "company_name", Label: "Company Name", Required: true, Example: "Acme Corp"},
	{Path: "contact.name", Column: "contact_name", Label: "Contact Name", Required: true, Example: "Jane Doe"},
	{Path: "contact.email", Column: "contact_email", Label: "Contact Email", Required: true, Example: "jane@acme.com"},
	{Path: "contract.startDate", Column: "contract_start_date", Label: "Contract Start Date", Required: true, Example: "2025-01-01"},
	{Path: "contract.endDate", Column: "contract_end_date", Label: "Contract End Date", Required: true, Example: "2026-01-01"},
	{Path: "renewal.date", Column: "renewal_date", Label: "Renewal Date", Required: true, Example: "2026-01-01"},
	{Path: "mrr", Column: "mrr", Label: "MRR", Required: true, Example: "1500"},
	{Path: "ltv", Column: "ltv", Label: "LTV", Example: "36000"},
	{Path: "subscribedMonths", Column: "subscribed_months", Label: "Subscribed Months", Example: "14"},
	{Path: "health.score", Column: "health_score", Label: "Health Score", Example: "82"},
	{Path: "usage.last30d", Column: "usage_30d", Label: "Usage Last 30 Days", Example: "64"},
	{Path: "churn.risk", Column: "churn_risk", Label: "Churn Risk", Example: "low"},
	{Path: "nps.score", Column: "nps_score", Label: "NPS Score", Example: "9"},
	{Path: "nps.comment", Column: "nps_comment", Label: "NPS Comment", Example: "Great onboarding"},
	{Path: "contract.value", Column: "contract_value", Label: "Contract Value", Example: "18000"},
	{Path: "csm.owner", Column: "csm_owner", Label: "CSM Owner", Example: "Sam Rivera"},
}

var ChurnRiskValues = []string{"low", "medium", "high", "critical"}

var SubscriptionStatusValues = []string{"active", "trial", "suspended", "cancelled"}

var MomentumValues = []string{"up", "down", "stable"}

func RequiredPaths() []string {
	paths := make([]string, 0, len(Fields))
	for _, field := range Fields {
		if field.Required {
			paths = append(paths, field.Path)
		}
	}
	return paths
}

func FieldByPath(path string) (Field, bool) {
	for _, field := range Fields {
		if field.Path == path {
			return field, true
		}
	}
	return Field{}, false
}

// TemplateCSV renders the import template: the registry columns as the
// header row plus one example data row.
func TemplateCSV() string {
	columns := make([]string, len(Fields))
	examples := make([]string, len(Fields))
	for i, field := range Fields {
		columns[i] = field.Column
		examples[i] = field.Example
	}
	return strings.Join(columns, ",") + "\n" + strings.Join(examples, ",") + "\n"
}
