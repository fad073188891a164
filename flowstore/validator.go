package flowstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
)

// Per-node-type JSON schemas for config validation at flow-load time.
// Fields are type-checked when present but never required: the engine
// degrades gracefully on missing config, so the editor may save
// half-configured nodes. Unknown properties are allowed for forward
// compatibility with the editor.
var nodeConfigSchemas = map[NodeType]string{
	NodeExpirationTrigger: `{
		"type": "object",
		"properties": {
			"timeOffset":     {"type": "number"},
			"filterCategory": {"type": "string"}
		}
	}`,
	NodeInventoryStatusTrigger: `{
		"type": "object",
		"properties": {
			"targetStatus": {"type": "string"}
		}
	}`,
	NodeConditionalBranch: `{
		"type": "object",
		"properties": {
			"checkField": {"type": "string"},
			"operator":   {"type": "string"},
			"checkValue": {}
		}
	}`,
	NodeUpdateData: `{
		"type": "object",
		"properties": {
			"targetField": {"type": "string"},
			"newValue":    {"type": "string"}
		}
	}`,
	NodeGenerateRecipe: `{
		"type": "object",
		"properties": {
			"prompt":       {"type": "string"},
			"credentialId": {"type": "string"}
		}
	}`,
	NodeSendNotification: `{
		"type": "object",
		"properties": {
			"channel":     {"type": "string"},
			"recipient":   {"type": "string"},
			"subject":     {"type": "string"},
			"messageBody": {"type": "string"}
		}
	}`,
	NodeWebhookDelivery: `{
		"type": "object",
		"properties": {
			"targetUrl":    {"type": "string"},
			"httpMethod":   {"type": "string"},
			"bodyTemplate": {"type": "string"}
		}
	}`,
	NodePartnerIntegration: `{
		"type": "object",
		"properties": {
			"credentialId": {"type": "string"},
			"action":       {"type": "string"}
		}
	}`,
}

var compiledSchemas = func() map[NodeType]*gojsonschema.Schema {
	out := make(map[NodeType]*gojsonschema.Schema, len(nodeConfigSchemas))
	for nodeType, raw := range nodeConfigSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("flowstore: bad schema for %s: %v", nodeType, err))
		}
		out[nodeType] = schema
	}
	return out
}()

// ValidateNodeConfig type-checks a node's config against the schema for its
// type. Unknown node types pass validation; the engine treats them as
// inert at execution time.
func ValidateNodeConfig(node *Node) error {
	schema, ok := compiledSchemas[node.Type]
	if !ok {
		return nil
	}

	cfg := node.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return errors.WrapInvalid(err, "flowstore", "ValidateNodeConfig", "marshal config")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.WrapInvalid(err, "flowstore", "ValidateNodeConfig", "schema validation")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("node '%s' (%s): %s", node.ID, node.Type, strings.Join(details, "; ")),
			"flowstore", "ValidateNodeConfig", "config validation")
	}

	return nil
}
