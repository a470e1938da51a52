package mapper

import (
	"reflect"
	"testing"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

func TestSuggestMappingIsCaseAndWhitespaceInsensitive(t *testing.T) {
	spaced, ok1 := SuggestMapping(" MRR ")
	plain, ok2 := SuggestMapping("mrr")
	if !ok1 || !ok2 {
		t.Fatal("expected mrr synonym to match")
	}
	if spaced != plain || spaced != "mrr" {
		t.Fatalf("expected identical suggestions, got %q and %q", spaced, plain)
	}
}

func TestSuggestMappingCoversRequiredSynonyms(t *testing.T) {
	cases := map[string]string{
		"customer_id":               "client.id",
		"account_name":              "company.name",
		"Contact Name":              "contact.name",
		"email_address":             "contact.email",
		"contract_start_date":       "contract.startDate",
		"contract_end_date":         "contract.endDate",
		"next_renewal":              "renewal.date",
		"monthly_recurring_revenue": "mrr",
		"lifetime_value":            "ltv",
		"tenure_months":             "subscribedMonths",
	}
	for legacy, want := range cases {
		got, ok := SuggestMapping(legacy)
		if !ok || got != want {
			t.Fatalf("SuggestMapping(%q) = %q (ok=%v), want %q", legacy, got, ok, want)
		}
	}
}

func TestSuggestMappingUnknownColumn(t *testing.T) {
	if got, ok := SuggestMapping("favorite_color"); ok {
		t.Fatalf("expected no suggestion for unknown column, got %q", got)
	}
}

func TestCheckFieldPresenceEmptyDataset(t *testing.T) {
	required := []string{"client.id", "company.name"}
	report := CheckFieldPresence(required, nil)
	if report.HasAll {
		t.Fatal("expected hasAll=false for empty dataset")
	}
	if !reflect.DeepEqual(report.Missing, required) {
		t.Fatalf("expected missing to echo required paths, got %v", report.Missing)
	}
	if len(report.Available) != 0 {
		t.Fatalf("expected no available paths, got %v", report.Available)
	}
}

func TestCheckFieldPresenceInspectsFirstRecordOnly(t *testing.T) {
	first := canonical.Record{}
	first.Set("company.name", "Acme")
	second := canonical.Record{}
	second.Set("client.id", "c-2")

	report := CheckFieldPresence([]string{"client.id", "company.name"}, []canonical.Record{first, second})
	if report.HasAll {
		t.Fatal("expected hasAll=false, client.id only appears past the first record")
	}
	if !reflect.DeepEqual(report.Missing, []string{"client.id"}) {
		t.Fatalf("expected client.id missing, got %v", report.Missing)
	}
	if !reflect.DeepEqual(report.Available, []string{"company.name"}) {
		t.Fatalf("expected company.name available, got %v", report.Available)
	}
}

func TestTransformDropsEmptyValues(t *testing.T) {
	raw := []map[string]any{{"a": "", "b": nil, "c": "x"}}
	mapping := FieldMapping{"a": "p.q", "b": "p.r", "c": "p.s"}

	records := TransformToCanonical(raw, mapping)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	want := canonical.Record{"p": map[string]any{"s": "x"}}
	if !reflect.DeepEqual(records[0], want) {
		t.Fatalf("expected %v, got %v", want, records[0])
	}
}

func TestTransformPreservesOrderAndDropsUnmapped(t *testing.T) {
	raw := []map[string]any{
		{"company_name": "Acme", "ignored": "yes"},
		{"company_name": "Globex"},
	}
	mapping := FieldMapping{"company_name": "company.name"}

	records := TransformToCanonical(raw, mapping)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if name := canonical.ResolveCompanyName(records[0]); name != "Acme" {
		t.Fatalf("expected first record Acme, got %q", name)
	}
	if name := canonical.ResolveCompanyName(records[1]); name != "Globex" {
		t.Fatalf("expected second record Globex, got %q", name)
	}
	if records[0].Has("ignored") {
		t.Fatal("expected unmapped column to be dropped")
	}
}

func TestTransformMappedToEmptyPathSkipsColumn(t *testing.T) {
	raw := []map[string]any{{"noise": "value"}}
	records := TransformToCanonical(raw, FieldMapping{"noise": ""})
	if len(records[0]) != 0 {
		t.Fatalf("expected empty record, got %v", records[0])
	}
}

func TestDuplicateTargets(t *testing.T) {
	mapping := FieldMapping{
		"company_name": "company.name",
		"account_name": "company.name",
		"mrr":          "mrr",
		"skip":         "",
	}
	duplicates := DuplicateTargets(mapping)
	if !reflect.DeepEqual(duplicates, []string{"company.name"}) {
		t.Fatalf("expected company.name duplicate, got %v", duplicates)
	}
	if got := DuplicateTargets(FieldMapping{"mrr": "mrr"}); len(got) != 0 {
		t.Fatalf("expected no duplicates, got %v", got)
	}
}
