package metrics

import "testing"

func TestFormatCurrencyBoundaries(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{0, "$0"},
		{999, "$999"},
		{1000, "$1K"},
		{45000, "$45K"},
		{999999, "$1000K"},
		{1000000, "$1.0M"},
		{2500000, "$2.5M"},
	}
	for _, tc := range cases {
		if got := FormatCurrency(tc.value); got != tc.want {
			t.Fatalf("FormatCurrency(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestFormatPercentage(t *testing.T) {
	if got := FormatPercentage(0); got != "0%" {
		t.Fatalf("expected 0%%, got %q", got)
	}
	if got := FormatPercentage(66.6); got != "67%" {
		t.Fatalf("expected 67%%, got %q", got)
	}
}

func TestFormatRelativeDate(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"", "Unknown"},
		{"not-a-date", "Unknown"},
		{frozenNow.AddDate(0, 0, -3).Format("2006-01-02"), "Overdue"},
		{frozenNow.Format("2006-01-02"), "Today"},
		{frozenNow.AddDate(0, 0, 1).Format("2006-01-02"), "Tomorrow"},
		{frozenNow.AddDate(0, 0, 5).Format("2006-01-02"), "5 days"},
		{frozenNow.AddDate(0, 0, 14).Format("2006-01-02"), "2 weeks"},
		{frozenNow.AddDate(0, 0, 75).Format("2006-01-02"), "3 months"},
	}
	for _, tc := range cases {
		if got := FormatRelativeDate(tc.date, frozenNow); got != tc.want {
			t.Fatalf("FormatRelativeDate(%q) = %q, want %q", tc.date, got, tc.want)
		}
	}
}
