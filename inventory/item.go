// Package inventory defines inventory items and their persistence. The flow
// engine reads items to match triggers and writes status changes back so the
// execution payload stays consistent with persisted state.
package inventory

import (
	"math"
	"time"
)

// Item is a single tracked kitchen inventory item
type Item struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Location       string     `json:"location"`
	Status         string     `json:"status"`
	Quantity       float64    `json:"quantity"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RemainingDays returns ceil((expiration − now) / 1 day) at midnight
// granularity: an item expiring later today reports 0, tomorrow reports 1.
// Items without an expiration date report a large positive count so
// expiration triggers never match them.
func (i *Item) RemainingDays(now time.Time) int {
	if i.ExpirationDate == nil {
		return math.MaxInt32
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	exp := i.ExpirationDate
	expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, now.Location())

	return int(math.Ceil(expDay.Sub(today).Hours() / 24))
}

// PayloadFields renders the item as the flat inventory_item sub-object of
// an execution payload. Numbers use float64 to match JSON decoding.
func (i *Item) PayloadFields(now time.Time) map[string]any {
	return map[string]any{
		"id":             i.ID,
		"name":           i.Name,
		"category":       i.Category,
		"location":       i.Location,
		"status":         i.Status,
		"remaining_days": float64(i.RemainingDays(now)),
		"quantity":       i.Quantity,
	}
}
