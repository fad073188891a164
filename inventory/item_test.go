package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingDays(t *testing.T) {
	// Fixed "now" mid-afternoon to exercise midnight granularity
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	day := func(offset int) *time.Time {
		d := time.Date(2025, 3, 10+offset, 8, 0, 0, 0, time.UTC)
		return &d
	}

	tests := []struct {
		name string
		exp  *time.Time
		want int
	}{
		{"expires later today", day(0), 0},
		{"expires tomorrow morning", day(1), 1},
		{"expires in two days", day(2), 2},
		{"expired yesterday", day(-1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := Item{ID: "i", ExpirationDate: tt.exp}
			assert.Equal(t, tt.want, item.RemainingDays(now))
		})
	}
}

func TestRemainingDaysNoExpiration(t *testing.T) {
	item := Item{ID: "i"}
	assert.Greater(t, item.RemainingDays(time.Now()), 1000,
		"items without expiration should never match expiration triggers")
}

func TestPayloadFields(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	exp := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

	item := Item{
		ID:             "item-9",
		Name:           "Milk",
		Category:       "Dairy",
		Location:       "Fridge",
		Status:         "fresh",
		Quantity:       2,
		ExpirationDate: &exp,
	}

	fields := item.PayloadFields(now)
	assert.Equal(t, "item-9", fields["id"])
	assert.Equal(t, "Milk", fields["name"])
	assert.Equal(t, float64(2), fields["remaining_days"])
	assert.Equal(t, float64(2), fields["quantity"])
}
