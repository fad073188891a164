// Package flowstore defines automation flow definitions and their
// persistence. A flow is a user-authored directed graph of trigger, logic,
// and action nodes wired by edges with named handles.
package flowstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
)

// NodeType identifies what a node does when executed
type NodeType string

// Node types understood by the engine
const (
	NodeExpirationTrigger      NodeType = "ExpirationTrigger"
	NodeInventoryStatusTrigger NodeType = "InventoryStatusTrigger"
	NodeConditionalBranch      NodeType = "ConditionalBranch"
	NodeUpdateData             NodeType = "UpdateData"
	NodeGenerateRecipe         NodeType = "GenerateRecipe"
	NodeSendNotification       NodeType = "SendNotification"
	NodeWebhookDelivery        NodeType = "WebhookDelivery"
	NodePartnerIntegration     NodeType = "PartnerIntegration"
)

// IsTrigger reports whether the node type can start a flow
func (t NodeType) IsTrigger() bool {
	return strings.HasSuffix(string(t), "Trigger")
}

// Handle names used on outgoing edges. Linear nodes use a single default
// handle; ConditionalBranch routes on output-true / output-false.
const (
	HandleTrue    = "output-true"
	HandleFalse   = "output-false"
	HandlePayload = "output-payload"
)

// Flow represents an automation flow definition with canvas layout.
// Immutable for the duration of one execution; owned by the editor.
type Flow struct {
	// Identity
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	// Graph
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Activation state
	IsActive      bool       `json:"is_active"`
	LastPublished *time.Time `json:"last_published,omitempty"`

	// Audit
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Node is a single step on the canvas. Config is an open key/value map
// whose shape depends on Type; missing fields degrade gracefully at
// execution time and are type-checked at load time by ValidateNodeConfig.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
}

// ConfigString returns a string config field, or "" if absent or not a string
func (n *Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	s, _ := n.Config[key].(string)
	return s
}

// ConfigFloat returns a numeric config field. JSON numbers decode as
// float64; authored integers are accepted too.
func (n *Node) ConfigFloat(key string) (float64, bool) {
	if n.Config == nil {
		return 0, false
	}
	switch v := n.Config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// ConfigValue returns a raw config field
func (n *Node) ConfigValue(key string) any {
	if n.Config == nil {
		return nil
	}
	return n.Config[key]
}

// Edge connects a source node's handle to a target node
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	Type         string `json:"type,omitempty"` // cosmetic, ignored by the engine
}

// Position holds canvas coordinates for a node. UI-only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node returns the node with the given id, or nil
func (f *Flow) Node(id string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns all edges whose source is the given node, in
// definition order
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the flow's start node: the trigger-typed node that is
// never the target of any edge. Returns nil for an empty flow or a flow
// with no such node.
func (f *Flow) StartNode() *Node {
	targets := make(map[string]bool, len(f.Edges))
	for _, e := range f.Edges {
		targets[e.Target] = true
	}

	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Type.IsTrigger() && !targets[n.ID] {
			return n
		}
	}
	return nil
}

// Validate checks structural validity: identity fields, unique node IDs,
// edges referencing existing nodes, and per-node-type config field types.
// A flow with zero nodes is valid; it simply never matches a trigger.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Validate", "validation")
	}
	if f.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("flow name cannot be empty"), "flowstore", "Validate", "validation")
	}

	nodeIDs := make(map[string]bool, len(f.Nodes))
	for i, node := range f.Nodes {
		if node.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node at index %d has empty ID", i),
				"flowstore", "Validate", "node validation")
		}
		if node.Type == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node '%s' has empty type", node.ID),
				"flowstore", "Validate", "node validation")
		}
		if nodeIDs[node.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate node ID: %s", node.ID),
				"flowstore", "Validate", "node validation")
		}
		nodeIDs[node.ID] = true

		if err := ValidateNodeConfig(&f.Nodes[i]); err != nil {
			return err
		}
	}

	for i, edge := range f.Edges {
		if edge.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("edge at index %d has empty ID", i),
				"flowstore", "Validate", "edge validation")
		}
		if !nodeIDs[edge.Source] {
			return errors.WrapInvalid(
				fmt.Errorf("edge '%s' references non-existent source node: %s", edge.ID, edge.Source),
				"flowstore", "Validate", "edge validation")
		}
		if !nodeIDs[edge.Target] {
			return errors.WrapInvalid(
				fmt.Errorf("edge '%s' references non-existent target node: %s", edge.ID, edge.Target),
				"flowstore", "Validate", "edge validation")
		}
	}

	return nil
}
