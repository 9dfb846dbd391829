package duedate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/internal/label"
	"orderdesk/internal/model"
)

func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, Zone)
}

func TestResolveDefaultWindow(t *testing.T) {
	o := model.Order{CreatedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}

	w := Resolve(o)
	assert.Equal(t, civil(2024, 3, 10), w.Start)
	assert.Equal(t, civil(2024, 3, 17), w.Due)
}

func TestResolveNormalizesLateUTCToNextCivilDay(t *testing.T) {
	// 22:30 UTC is already 01:30 the next day in UTC+3.
	o := model.Order{CreatedAt: time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)}

	w := Resolve(o)
	assert.Equal(t, civil(2024, 3, 11), w.Start)
}

func TestResolveKeyedFactsWin(t *testing.T) {
	override := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	o := model.Order{
		CreatedAt:     time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Tags:          label.Labels{"custom_start_date:2024-03-12", "custom_due_date: 2024-03-20 "},
		CustomDueDate: &override,
	}

	w := Resolve(o)
	assert.Equal(t, civil(2024, 3, 12), w.Start)
	assert.Equal(t, civil(2024, 3, 20), w.Due)
}

func TestResolveTimestampOverrides(t *testing.T) {
	start := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	o := model.Order{
		CreatedAt:       time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		CustomStartDate: &start,
	}

	w := Resolve(o)
	assert.Equal(t, civil(2024, 4, 1), w.Start)
	assert.Equal(t, civil(2024, 4, 8), w.Due)
}

func TestResolveRushWindowFirstMatchWins(t *testing.T) {
	o := model.Order{
		CreatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		LineItems: []model.LineItem{
			{Title: "Plain mug"},
			{Title: "Tote", Properties: []model.Property{{Name: "Production", Value: "Rush order (3 days)"}}},
			{Title: "Handmade bowl - 10 days"},
		},
	}

	w := Resolve(o)
	assert.Equal(t, civil(2024, 3, 13), w.Due)
}

func TestResolveUnparseableFactFallsThrough(t *testing.T) {
	o := model.Order{
		CreatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Tags:      label.Labels{"custom_due_date:someday", "custom_start_date:null"},
	}

	w := Resolve(o)
	assert.Equal(t, civil(2024, 3, 10), w.Start)
	assert.Equal(t, civil(2024, 3, 17), w.Due)
}

func TestResolveUnusableDateFallsBackToCreation(t *testing.T) {
	o := model.Order{
		CreatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Tags:      label.Labels{"custom_due_date:0001-01-01"},
		LineItems: []model.LineItem{{Title: "Rush 2 days"}},
	}

	w := Resolver{DefaultDays: 14}.Resolve(o)
	assert.Equal(t, civil(2024, 3, 10), w.Start)
	assert.Equal(t, civil(2024, 3, 24), w.Due, "fallback ignores the rush window")
}

func TestResolveZeroCreationDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { Resolve(model.Order{}) })
}

func TestWindowFromText(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"Rush order (3 days)", 3, true},
		{"HANDMADE - ready in 10 days", 10, true},
		{"rush 1 day", 1, true},
		{"Handmade 2 pieces, 12 days", 12, true},
		{"Standard", 0, false},
		{"rush 9999 days", 0, false},
	}
	for _, tc := range cases {
		got, ok := WindowFromText(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate(" 2024-03-01 ")
	require.True(t, ok)
	assert.Equal(t, civil(2024, 3, 1), got)

	got, ok = ParseDate("2024-03-01T23:30:00Z")
	require.True(t, ok)
	assert.Equal(t, civil(2024, 3, 2), got)

	_, ok = ParseDate("null")
	assert.False(t, ok)
	_, ok = ParseDate("01/03/2024")
	assert.False(t, ok)
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 0, 0, 0, Zone)

	assert.Equal(t, 0, DaysRemaining(civil(2024, 3, 10), now))
	assert.Equal(t, 3, DaysRemaining(civil(2024, 3, 13), now))
	assert.Equal(t, -2, DaysRemaining(civil(2024, 3, 8), now))

	// 21:30 UTC on the 10th is already the 11th in Zone.
	utcNow := time.Date(2024, 3, 10, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, 2, DaysRemaining(civil(2024, 3, 13), utcNow))
}

func TestDaysRemainingFarDates(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 2912740, DaysRemaining(civil(9999, 1, 1), now))
	assert.Equal(t, -19793, DaysRemaining(civil(1969, 12, 31), now))

	o := model.Order{
		CreatedAt: now,
		Tags:      label.Labels{"custom_due_date:9999-01-01"},
	}
	assert.Equal(t, 2912740, Resolver{DefaultDays: 7}.Remaining(o, now))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2024-03-11", FormatDate(time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC)))
}
