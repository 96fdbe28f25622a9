package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceDates(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2026-03-22", "2026-03-22"},
		{"03/22/2026", "2026-03-22"},
		{"3/2/2026", "2026-03-02"},
		{"2026/03/22", "2026-03-22"},
		{"03-22-2026", "2026-03-22"},
	}
	for _, tc := range cases {
		cell := Coerce("start_date", tc.raw, dealConfig)
		require.True(t, cell.IsValid(), "raw %q", tc.raw)
		assert.Equal(t, tc.want, cell.Value())
	}
}

func TestCoerceDateInvalid(t *testing.T) {
	cell := Coerce("start_date", "not-a-date", dealConfig)
	assert.True(t, cell.IsInvalid())
	assert.Contains(t, cell.Reason(), "Start Date")
}

func TestCoerceNumericClamping(t *testing.T) {
	cell := Coerce("priority", "99", dealConfig)
	require.True(t, cell.IsValid())
	assert.Equal(t, 5, cell.Value())

	cell = Coerce("priority", "0", dealConfig)
	require.True(t, cell.IsValid())
	assert.Equal(t, 1, cell.Value())

	cell = Coerce("probability", "150", dealConfig)
	require.True(t, cell.IsValid())
	assert.Equal(t, 100, cell.Value())
}

func TestCoerceAmountKeepsCurrencyNoise(t *testing.T) {
	cell := Coerce("amount", "$12,500.75", dealConfig)
	require.True(t, cell.IsValid())
	assert.Equal(t, 12500.75, cell.Value())
}

func TestCoerceNumericUnparsable(t *testing.T) {
	cell := Coerce("amount", "a lot", dealConfig)
	assert.True(t, cell.IsInvalid(), "unparsable numbers are invalid, processor degrades them")
}

func TestCoerceEnumCaseInsensitive(t *testing.T) {
	cell := Coerce("stage", "closed won", dealConfig)
	require.True(t, cell.IsValid())
	assert.Equal(t, "Closed Won", cell.Value())
}

func TestCoerceEnumMissDegrades(t *testing.T) {
	cell := Coerce("stage", "Daydreaming", dealConfig)
	assert.True(t, cell.IsAbsent(), "invalid enum literal must never pass through")
}

func TestCoerceLeadStatusDefault(t *testing.T) {
	cell := Coerce("status", "Warmish", leadConfig)
	require.True(t, cell.IsValid())
	assert.Equal(t, "New", cell.Value())
}

func TestCoerceBlankIsAbsent(t *testing.T) {
	assert.True(t, Coerce("company", "   ", contactConfig).IsAbsent())
	assert.True(t, Coerce("start_date", "", dealConfig).IsAbsent())
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("TRUE"))
	assert.True(t, parseBool("1"))
	assert.False(t, parseBool("yes"))
	assert.False(t, parseBool("0"))
	assert.False(t, parseBool(""))
}
