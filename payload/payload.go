// Package payload implements the execution context threaded through a flow:
// safe dot-path resolution, string templating, and copy-on-write enrichment.
package payload

import (
	"fmt"
	"strconv"
	"time"
)

// Well-known payload keys
const (
	KeyTriggerEvent  = "trigger_event"
	KeyTimestamp     = "timestamp"
	KeyUserID        = "user_id"
	KeyInventoryItem = "inventory_item"
	KeyRelatedData   = "related_data"
)

// Payload is the mutable execution context for one graph walk. Action nodes
// enrich it under related_data; enrichment returns a copy so earlier trace
// steps can be diffed against later ones.
type Payload map[string]any

// New builds the initial payload for an execution.
func New(triggerEvent, userID string, item map[string]any) Payload {
	return Payload{
		KeyTriggerEvent:  triggerEvent,
		KeyTimestamp:     time.Now().UTC().Format(time.RFC3339),
		KeyUserID:        userID,
		KeyInventoryItem: item,
		KeyRelatedData:   map[string]any{},
	}
}

// Resolve walks a dot-separated path ("inventory_item.name") and returns the
// value at that path. The second return is false if any segment is missing
// or a non-map value is reached before the path is exhausted. Never panics.
func (p Payload) Resolve(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = map[string]any(p)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		segment := path[start:i]
		start = i + 1

		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// ResolveString resolves a path and stringifies the result.
func (p Payload) ResolveString(path string) (string, bool) {
	val, ok := p.Resolve(path)
	if !ok {
		return "", false
	}
	return Stringify(val), true
}

// Enrich returns a new payload with related_data[key] = data set. The
// receiver is left untouched.
func (p Payload) Enrich(key string, data any) Payload {
	next := p.Clone()

	related, ok := next[KeyRelatedData].(map[string]any)
	if !ok {
		related = map[string]any{}
	} else {
		copied := make(map[string]any, len(related)+1)
		for k, v := range related {
			copied[k] = v
		}
		related = copied
	}
	related[key] = data
	next[KeyRelatedData] = related
	return next
}

// WithItemField returns a new payload with inventory_item[field] updated.
func (p Payload) WithItemField(field string, value any) Payload {
	next := p.Clone()

	item, ok := next[KeyInventoryItem].(map[string]any)
	if !ok {
		item = map[string]any{}
	} else {
		copied := make(map[string]any, len(item)+1)
		for k, v := range item {
			copied[k] = v
		}
		item = copied
	}
	item[field] = value
	next[KeyInventoryItem] = item
	return next
}

// Clone returns a shallow copy of the top level. Nested maps are shared;
// mutation paths (Enrich, WithItemField) copy the level they touch.
func (p Payload) Clone() Payload {
	next := make(Payload, len(p))
	for k, v := range p {
		next[k] = v
	}
	return next
}

// Stringify renders a payload value for templates and log lines. Floats that
// hold integral values print without a decimal part, matching how item
// quantities and day counts are authored in flow configs.
func Stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
