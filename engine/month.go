package engine

import (
	"fmt"
	"strings"
)

// =============================================================================
// MONTH LABELS - Romanian month names, normalized archive keys
// =============================================================================

// Months are addressed by their Romanian label ("Martie 2025"). The archive
// key is the label with spaces replaced by underscores ("Martie_2025").

var romanianMonths = []string{
	"Ianuarie", "Februarie", "Martie", "Aprilie", "Mai", "Iunie",
	"Iulie", "August", "Septembrie", "Octombrie", "Noiembrie", "Decembrie",
}

// MonthKey normalizes a month label into an archive key.
func MonthKey(label string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(label)), "_")
}

// MonthLabel is the inverse of MonthKey.
func MonthLabel(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// ParseMonth splits a label like "Martie 2025" into month index (1-12) and
// year. The month name comparison is case-insensitive.
func ParseMonth(label string) (month int, year int, err error) {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("invalid month label %q", label)
	}
	for i, name := range romanianMonths {
		if strings.EqualFold(name, fields[0]) {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return 0, 0, fmt.Errorf("unknown month name %q", fields[0])
	}
	if _, err := fmt.Sscanf(fields[1], "%d", &year); err != nil || year < 1900 {
		return 0, 0, fmt.Errorf("invalid year in month label %q", label)
	}
	return month, year, nil
}

// NextMonthLabel returns the label of the month following the given one.
func NextMonthLabel(label string) (string, error) {
	month, year, err := ParseMonth(label)
	if err != nil {
		return "", err
	}
	month++
	if month > 12 {
		month = 1
		year++
	}
	return fmt.Sprintf("%s %d", romanianMonths[month-1], year), nil
}
