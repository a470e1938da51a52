package metrics

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/clientpulse-platform/apps/api/internal/canonical"
)

// FormatCurrency renders dashboard money values with the thresholds the UI
// depends on: "$0", "$999", "$1K", "$1000K", "$1.0M". Values under a million
// stay in thousands; promotion to millions happens at exactly 1,000,000.
func FormatCurrency(value float64) string {
	switch {
	case value == 0:
		return "$0"
	case value < 1000:
		return "$" + strconv.FormatFloat(value, 'f', -1, 64)
	case value < 1000000:
		return fmt.Sprintf("$%.0fK", value/1000)
	default:
		return fmt.Sprintf("$%.1fM", value/1000000)
	}
}

func FormatPercentage(value float64) string {
	return strconv.Itoa(int(math.Round(value))) + "%"
}

// FormatRelativeDate renders a renewal date relative to now. Empty or
// unparseable input reads "Unknown"; past dates read "Overdue".
func FormatRelativeDate(dateStr string, now time.Time) string {
	if dateStr == "" {
		return "Unknown"
	}
	parsed, ok := canonical.AsDate(dateStr)
	if !ok {
		return "Unknown"
	}

	days := daysUntil(now, dateOnly(parsed))
	switch {
	case days < 0:
		return "Overdue"
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days < 7:
		return fmt.Sprintf("%d days", days)
	case days < 30:
		return fmt.Sprintf("%d weeks", int(math.Ceil(float64(days)/7)))
	default:
		return fmt.Sprintf("%d months", int(math.Ceil(float64(days)/30)))
	}
}
