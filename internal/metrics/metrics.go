// Package metrics computes dashboard read models over in-memory canonical
// client records. Everything here is pure and degrades to zero/empty output
// on malformed input; a dashboard aggregation must never crash the caller.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

const atRiskHealthThreshold = 50

// unlockThreshold is the portfolio fraction that must support an analytics
// group before it unlocks.
const unlockThreshold = 0.5

const DefaultRenewalHorizonDays = 90

type Totals struct {
	TotalClients int     `json:"totalClients"`
	AtRisk       int     `json:"atRisk"`
	TotalMRR     float64 `json:"totalMRR"`
	AvgHealth    int     `json:"avgHealth"`
}

// CalcTotals computes the dashboard headline numbers. A client counts as at
// risk when churn risk is high or critical, or when its health score
// (defaulting to 0 when absent) is below 50. Average health covers strictly
// positive scores only.
func CalcTotals(clients []canonical.Record) Totals {
	totals := Totals{}
	if len(clients) == 0 {
		return totals
	}

	totals.TotalClients = len(clients)
	healthSum := 0.0
	healthCount := 0
	for _, client := range clients {
		risk := canonical.ResolveChurnRisk(client)
		score, _ := canonical.ResolveHealthScore(client)
		if risk == "high" || risk == "critical" || score < atRiskHealthThreshold {
			totals.AtRisk++
		}
		if mrr, ok := canonical.ResolveMRR(client); ok {
			totals.TotalMRR += mrr
		}
		if score > 0 {
			healthSum += score
			healthCount++
		}
	}
	if healthCount > 0 {
		totals.AvgHealth = int(math.Round(healthSum / float64(healthCount)))
	}
	return totals
}

type RenewalSummary struct {
	ClientID         string  `json:"clientId"`
	CompanyName      string  `json:"companyName"`
	RenewalDate      string  `json:"renewalDate"`
	ContractValue    float64 `json:"contractValue"`
	MRR              float64 `json:"mrr"`
	HealthScore      float64 `json:"healthScore"`
	ChurnRisk        string  `json:"churnRisk"`
	ContactName      string  `json:"contactName"`
	CSMOwner         string  `json:"csmOwner"`
	DaysUntilRenewal int     `json:"daysUntilRenewal"`
}

// NextRenewals returns clients whose renewal date falls within
// [today, today+days], sorted ascending by renewal date. Both window edges
// are inclusive. A positive limit truncates the result.
func NextRenewals(clients []canonical.Record, now time.Time, days int, limit int) []RenewalSummary {
	if days <= 0 {
		days = DefaultRenewalHorizonDays
	}
	today := dateOnly(now)
	windowEnd := today.AddDate(0, 0, days)

	summaries := make([]RenewalSummary, 0, len(clients))
	for _, client := range clients {
		renewal, ok := canonical.ResolveRenewalDate(client)
		if !ok {
			continue
		}
		renewalDay := dateOnly(renewal)
		if renewalDay.Before(today) || renewalDay.After(windowEnd) {
			continue
		}

		risk := canonical.ResolveChurnRisk(client)
		if risk == "" {
			risk = "unknown"
		}
		contractValue, _ := canonical.ResolveContractValue(client)
		mrr, _ := canonical.ResolveMRR(client)
		health, _ := canonical.ResolveHealthScore(client)

		summaries = append(summaries, RenewalSummary{
			ClientID:         canonical.ResolveClientID(client),
			CompanyName:      canonical.ResolveCompanyName(client),
			RenewalDate:      renewalDay.Format("2006-01-02"),
			ContractValue:    contractValue,
			MRR:              mrr,
			HealthScore:      health,
			ChurnRisk:        risk,
			ContactName:      canonical.ResolveContactName(client),
			CSMOwner:         canonical.ResolveCSMOwner(client),
			DaysUntilRenewal: daysUntil(now, renewalDay),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].RenewalDate < summaries[j].RenewalDate
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

type unlockGroup struct {
	name      string
	satisfied func(canonical.Record) bool
}

var unlockGroups = []unlockGroup{
	{name: "Revenue Analytics", satisfied: func(r canonical.Record) bool {
		_, hasMRR := canonical.ResolveMRR(r)
		_, hasRenewal := canonical.ResolveRenewalDate(r)
		return hasMRR && hasRenewal
	}},
	{name: "Retention Analysis", satisfied: func(r canonical.Record) bool {
		_, hasMonths := canonical.AsNumber(valueAt(r, "subscribedMonths", "subscribed_months"))
		_, hasRenewal := canonical.ResolveRenewalDate(r)
		return hasMonths && hasRenewal
	}},
	{name: "Health Monitoring", satisfied: func(r canonical.Record) bool {
		_, hasHealth := canonical.ResolveHealthScore(r)
		_, hasUsage := canonical.AsNumber(valueAt(r, "usage.last30d", "usage_30d"))
		return hasHealth && hasUsage
	}},
	{name: "Satisfaction Tracking", satisfied: func(r canonical.Record) bool {
		_, hasScore := canonical.AsNumber(valueAt(r, "nps.score", "nps_score"))
		return hasScore && hasText(r, "nps.comment", "nps_comment")
	}},
	{name: "Contract Management", satisfied: func(r canonical.Record) bool {
		_, hasRenewal := canonical.ResolveRenewalDate(r)
		_, hasValue := canonical.ResolveContractValue(r)
		return hasRenewal && hasValue && canonical.ResolveChurnRisk(r) != ""
	}},
}

// Unlocks reports which analytics groups have enough populated data to
// display: a group unlocks when at least half the portfolio satisfies its
// field-presence predicate. Empty input unlocks nothing.
func Unlocks(clients []canonical.Record) map[string]bool {
	unlocked := map[string]bool{}
	if len(clients) == 0 {
		return unlocked
	}

	for _, group := range unlockGroups {
		satisfied := 0
		for _, client := range clients {
			if group.satisfied(client) {
				satisfied++
			}
		}
		if float64(satisfied)/float64(len(clients)) >= unlockThreshold {
			unlocked[group.name] = true
		}
	}
	return unlocked
}

func valueAt(r canonical.Record, paths ...string) any {
	for _, path := range paths {
		if value, ok := r.Get(path); ok {
			return value
		}
	}
	return nil
}

func hasText(r canonical.Record, paths ...string) bool {
	for _, path := range paths {
		if value, ok := r.Get(path); ok {
			if text, isString := value.(string); isString && text == "" {
				continue
			}
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysUntil(now time.Time, renewalDay time.Time) int {
	diff := renewalDay.Sub(now).Hours() / 24
	return int(math.Ceil(diff))
}
