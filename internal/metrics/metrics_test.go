package metrics

import (
	"testing"
	"time"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

var frozenNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func client(fields map[string]any) canonical.Record {
	record := canonical.Record{}
	for path, value := range fields {
		record.Set(path, value)
	}
	return record
}

func TestCalcTotalsEmptyInput(t *testing.T) {
	totals := CalcTotals(nil)
	if totals.TotalClients != 0 || totals.AtRisk != 0 || totals.TotalMRR != 0 || totals.AvgHealth != 0 {
		t.Fatalf("expected all-zero totals, got %+v", totals)
	}
}

func TestCalcTotalsAvgHealthExcludesZeroScores(t *testing.T) {
	clients := []canonical.Record{
		client(map[string]any{"health.score": 0.0}),
		client(map[string]any{"health.score": 80.0}),
	}
	totals := CalcTotals(clients)
	if totals.AvgHealth != 80 {
		t.Fatalf("expected avgHealth=80 over positive scores only, got %d", totals.AvgHealth)
	}
}

func TestCalcTotalsAtRiskRule(t *testing.T) {
	clients := []canonical.Record{
		client(map[string]any{"churn.risk": "critical", "health.score": 90.0}),
		client(map[string]any{"churn.risk": "low", "health.score": 30.0}),
		client(map[string]any{"churn.risk": "low", "health.score": 75.0}),
		client(map[string]any{"company.name": "No Data Ltd"}),
	}
	totals := CalcTotals(clients)
	// The no-data client defaults to a zero health score and counts at risk.
	if totals.AtRisk != 3 {
		t.Fatalf("expected 3 at-risk clients, got %d", totals.AtRisk)
	}
}

func TestCalcTotalsMRRTreatsNonNumericAsZero(t *testing.T) {
	clients := []canonical.Record{
		client(map[string]any{"mrr": "1500"}),
		client(map[string]any{"mrr": "n/a"}),
		client(map[string]any{"company.name": "No MRR"}),
		client(map[string]any{"mrr": 500.0}),
	}
	totals := CalcTotals(clients)
	if totals.TotalMRR != 2000 {
		t.Fatalf("expected totalMRR=2000, got %v", totals.TotalMRR)
	}
}

func TestNextRenewalsBoundaryInclusive(t *testing.T) {
	today := frozenNow.Format("2006-01-02")
	edge := frozenNow.AddDate(0, 0, 90).Format("2006-01-02")
	past := frozenNow.AddDate(0, 0, 91).Format("2006-01-02")

	clients := []canonical.Record{
		client(map[string]any{"client.id": "a", "renewal.date": today}),
		client(map[string]any{"client.id": "b", "renewal.date": edge}),
		client(map[string]any{"client.id": "c", "renewal.date": past}),
	}
	summaries := NextRenewals(clients, frozenNow, 90, 0)
	if len(summaries) != 2 {
		t.Fatalf("expected inclusive window with 2 renewals, got %d", len(summaries))
	}
	if summaries[0].ClientID != "a" || summaries[1].ClientID != "b" {
		t.Fatalf("unexpected window contents: %+v", summaries)
	}
	if summaries[0].DaysUntilRenewal != 0 {
		t.Fatalf("expected renewal today to read 0 days, got %d", summaries[0].DaysUntilRenewal)
	}
	if summaries[1].DaysUntilRenewal != 90 {
		t.Fatalf("expected edge renewal to read 90 days, got %d", summaries[1].DaysUntilRenewal)
	}
}

func TestNextRenewalsSortedAscending(t *testing.T) {
	clients := []canonical.Record{
		client(map[string]any{"client.id": "late", "renewal.date": frozenNow.AddDate(0, 0, 5).Format("2006-01-02")}),
		client(map[string]any{"client.id": "first", "renewal.date": frozenNow.AddDate(0, 0, 1).Format("2006-01-02")}),
		client(map[string]any{"client.id": "middle", "renewal.date": frozenNow.AddDate(0, 0, 3).Format("2006-01-02")}),
	}
	summaries := NextRenewals(clients, frozenNow, 90, 0)
	if len(summaries) != 3 {
		t.Fatalf("expected 3 renewals, got %d", len(summaries))
	}
	order := []string{summaries[0].ClientID, summaries[1].ClientID, summaries[2].ClientID}
	if order[0] != "first" || order[1] != "middle" || order[2] != "late" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestNextRenewalsLimitAndFallbacks(t *testing.T) {
	clients := []canonical.Record{
		{"company_name": "Legacy Co", "renewal_date": frozenNow.AddDate(0, 0, 2).Format("2006-01-02")},
		{"client_name": "Fallback Inc", "contract_end_date": frozenNow.AddDate(0, 0, 4).Format("2006-01-02")},
		client(map[string]any{"company.name": "Canonical Ltd", "renewal.date": frozenNow.AddDate(0, 0, 6).Format("2006-01-02")}),
	}
	summaries := NextRenewals(clients, frozenNow, 90, 2)
	if len(summaries) != 2 {
		t.Fatalf("expected limit to truncate to 2, got %d", len(summaries))
	}
	if summaries[0].CompanyName != "Legacy Co" {
		t.Fatalf("expected legacy renewal_date fallback, got %+v", summaries[0])
	}
	if summaries[1].CompanyName != "Fallback Inc" {
		t.Fatalf("expected contract_end_date fallback, got %+v", summaries[1])
	}
	if summaries[0].ChurnRisk != "unknown" {
		t.Fatalf("expected unknown churn risk default, got %q", summaries[0].ChurnRisk)
	}
}

func TestNextRenewalsSkipsUnresolvableDates(t *testing.T) {
	clients := []canonical.Record{
		client(map[string]any{"company.name": "No Date"}),
		client(map[string]any{"renewal.date": "garbage"}),
	}
	if summaries := NextRenewals(clients, frozenNow, 90, 0); len(summaries) != 0 {
		t.Fatalf("expected no renewals, got %+v", summaries)
	}
}

func TestUnlocksEmptyInput(t *testing.T) {
	if unlocked := Unlocks(nil); len(unlocked) != 0 {
		t.Fatalf("expected no unlocks for empty portfolio, got %v", unlocked)
	}
}

func TestUnlocksThresholdIsInclusiveAtHalf(t *testing.T) {
	revenueReady := client(map[string]any{"mrr": 1000.0, "renewal.date": "2026-03-01"})
	bare := client(map[string]any{"company.name": "Sparse"})

	unlocked := Unlocks([]canonical.Record{revenueReady, revenueReady.Clone(), bare, bare.Clone()})
	if !unlocked["Revenue Analytics"] {
		t.Fatalf("expected Revenue Analytics at exactly 2/4, got %v", unlocked)
	}
	if len(unlocked) != 1 {
		t.Fatalf("expected only Revenue Analytics, got %v", unlocked)
	}
}

func TestUnlocksAllGroups(t *testing.T) {
	full := client(map[string]any{
		"mrr":              1200.0,
		"renewal.date":     "2026-04-01",
		"subscribedMonths": 14.0,
		"health.score":     82.0,
		"usage.last30d":    64.0,
		"nps.score":        9.0,
		"nps.comment":      "Great onboarding",
		"contract.value":   18000.0,
		"churn.risk":       "low",
	})
	unlocked := Unlocks([]canonical.Record{full})
	want := []string{"Revenue Analytics", "Retention Analysis", "Health Monitoring", "Satisfaction Tracking", "Contract Management"}
	for _, group := range want {
		if !unlocked[group] {
			t.Fatalf("expected %s unlocked, got %v", group, unlocked)
		}
	}
	if len(unlocked) != len(want) {
		t.Fatalf("unexpected extra groups: %v", unlocked)
	}
}
