package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocledger/fee-engine/engine"
)

func TestMonthKey_Roundtrip(t *testing.T) {
	assert.Equal(t, "Martie_2025", engine.MonthKey("Martie 2025"))
	assert.Equal(t, "Martie_2025", engine.MonthKey("  Martie   2025 "))
	assert.Equal(t, "Martie 2025", engine.MonthLabel("Martie_2025"))
}

func TestParseMonth(t *testing.T) {
	month, year, err := engine.ParseMonth("Martie 2025")
	require.NoError(t, err)
	assert.Equal(t, 3, month)
	assert.Equal(t, 2025, year)

	// Month name comparison is case-insensitive.
	month, _, err = engine.ParseMonth("decembrie 2024")
	require.NoError(t, err)
	assert.Equal(t, 12, month)
}

func TestParseMonth_Invalid(t *testing.T) {
	cases := []string{"", "Martie", "March 2025", "Martie twenty25", "Martie 1024"}
	for _, label := range cases {
		_, _, err := engine.ParseMonth(label)
		assert.Error(t, err, "label %q should be rejected", label)
	}
}

func TestNextMonthLabel(t *testing.T) {
	next, err := engine.NextMonthLabel("Martie 2025")
	require.NoError(t, err)
	assert.Equal(t, "Aprilie 2025", next)

	// Year rollover.
	next, err = engine.NextMonthLabel("Decembrie 2025")
	require.NoError(t, err)
	assert.Equal(t, "Ianuarie 2026", next)
}
