package engine

import (
	"strings"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/inventory"
)

// Trigger config fields
const (
	cfgTimeOffset     = "timeOffset"
	cfgFilterCategory = "filterCategory"
	cfgTargetStatus   = "targetStatus"
)

// MatchesTrigger reports whether the item satisfies the trigger node's
// predicate. Pure; evaluated once per (flow, item) pair before execution.
func (e *Engine) MatchesTrigger(item *inventory.Item, trigger *flowstore.Node) bool {
	if item == nil || trigger == nil {
		return false
	}

	switch trigger.Type {
	case flowstore.NodeExpirationTrigger:
		return e.matchesExpiration(item, trigger)
	case flowstore.NodeInventoryStatusTrigger:
		return e.matchesStatus(item, trigger)
	default:
		return false
	}
}

// matchesExpiration matches items whose remaining days are at or below the
// configured offset, optionally filtered by category.
func (e *Engine) matchesExpiration(item *inventory.Item, trigger *flowstore.Node) bool {
	timeOffset, ok := trigger.ConfigFloat(cfgTimeOffset)
	if !ok {
		e.logger.Debug("Expiration trigger missing timeOffset, never matches",
			"node_id", trigger.ID)
		return false
	}

	remaining := item.RemainingDays(e.now())
	if float64(remaining) > timeOffset {
		return false
	}

	filter := strings.TrimSpace(trigger.ConfigString(cfgFilterCategory))
	if filter == "" || strings.EqualFold(filter, "all") {
		return true
	}
	return strings.EqualFold(item.Category, filter)
}

func (e *Engine) matchesStatus(item *inventory.Item, trigger *flowstore.Node) bool {
	target := strings.TrimSpace(trigger.ConfigString(cfgTargetStatus))
	if target == "" {
		e.logger.Debug("Status trigger missing targetStatus, never matches",
			"node_id", trigger.ID)
		return false
	}
	return strings.EqualFold(item.Status, target)
}
