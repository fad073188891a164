package engine

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/payload"
)

func logContains(log []string, fragment string) bool {
	for _, line := range log {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func TestNewRequiresCoreCollaborators(t *testing.T) {
	_, err := New(Collaborators{})
	assert.Error(t, err)
}

func TestTestExecutionLinearFlow(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))
	flow := expirationFlow("flow-1")

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"trigger-1", "notify-1"}, result.Trace)
	assert.True(t, logContains(result.Log, "push notification delivered: Expiring: Milk"))

	exists, _ := env.ledger.Exists(context.Background(), "flow-1", "item-1")
	assert.True(t, exists, "ledger entry written after send")

	item, ok := result.FinalPayload[payload.KeyInventoryItem].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Milk", item["name"])
	assert.Equal(t, "active", item["status"], "inventory item unchanged")
}

func TestTestExecutionNoMatch(t *testing.T) {
	// Category mismatch: dairy filter, produce item
	env := newTestEnv(expiringItem("item-1", "Produce", 1))
	flow := expirationFlow("flow-1")

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTestExecutionItemNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.engine.TestExecution(context.Background(), expirationFlow("flow-1"), "missing")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestTestExecutionFlowWithoutStartNode(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))

	empty := testFlow("flow-empty", nil, nil)
	_, err := env.engine.TestExecution(context.Background(), empty, "item-1")
	assert.ErrorIs(t, err, ErrNoMatch, "zero-node flow never matches")
}

func TestDuplicateSuppression(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))
	flow := expirationFlow("flow-1")
	ctx := context.Background()

	first, err := env.engine.TestExecution(ctx, flow, "item-1")
	require.NoError(t, err)
	assert.True(t, logContains(first.Log, "delivered"))

	second, err := env.engine.TestExecution(ctx, flow, "item-1")
	require.NoError(t, err, "duplicate is a clean stop, not an error")
	assert.Equal(t, []string{"trigger-1", "notify-1"}, second.Trace)
	assert.True(t, logContains(second.Log, "already sent"))
	assert.Equal(t, 1, env.ledger.records, "exactly one ledger entry across both runs")
}

func TestBranchFalsePathToRecipe(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))
	env.creds.creds["cred-ai"] = testCredential("cred-ai", "sk-secret")

	flow := testFlow("flow-branch",
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
			node("branch-1", flowstore.NodeConditionalBranch, map[string]any{
				"checkField": "inventory_item.location",
				"operator":   "==",
				"checkValue": "Fridge",
			}),
			node("notify-1", flowstore.NodeSendNotification, map[string]any{
				"channel": "push", "messageBody": "still fresh",
			}),
			node("recipe-1", flowstore.NodeGenerateRecipe, map[string]any{
				"prompt":       "Recipes for {{inventory_item.name}}",
				"credentialId": "cred-ai",
			}),
		},
		[]flowstore.Edge{
			edge("e1", "trigger-1", "branch-1", ""),
			edge("e2", "branch-1", "notify-1", flowstore.HandleTrue),
			edge("e3", "branch-1", "recipe-1", flowstore.HandleFalse),
		},
	)

	// Item is in the Pantry, so the condition is false
	item, _ := env.items.Find(context.Background(), "item-1")
	item.Location = "Pantry"

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"trigger-1", "branch-1", "recipe-1"}, result.Trace)
	assert.Equal(t, "Recipes for Milk", env.recipes.gotPrompt, "prompt rendered through templates")
	assert.Equal(t, "sk-secret", env.recipes.gotKey)

	related := result.FinalPayload[payload.KeyRelatedData].(map[string]any)
	assert.Equal(t, "1. Milk pancakes", related["recipe_suggestions"])
	assert.Equal(t, 0, env.notifier.sendCount())
}

func TestBranchTruePath(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))

	flow := testFlow("flow-branch",
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
			node("branch-1", flowstore.NodeConditionalBranch, map[string]any{
				"checkField": "inventory_item.location",
				"operator":   "==",
				"checkValue": "Fridge",
			}),
			node("notify-1", flowstore.NodeSendNotification, map[string]any{
				"channel": "push", "messageBody": "still fresh",
			}),
		},
		[]flowstore.Edge{
			edge("e1", "trigger-1", "branch-1", ""),
			edge("e2", "branch-1", "notify-1", flowstore.HandleTrue),
		},
	)

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger-1", "branch-1", "notify-1"}, result.Trace)
}

func TestBranchDeadEndHandleTerminatesCleanly(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))

	// Condition is true but only an output-false edge exists
	flow := testFlow("flow-dead",
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
			node("branch-1", flowstore.NodeConditionalBranch, map[string]any{
				"checkField": "inventory_item.location",
				"operator":   "==",
				"checkValue": "Fridge",
			}),
			node("recipe-1", flowstore.NodeGenerateRecipe, nil),
		},
		[]flowstore.Edge{
			edge("e1", "trigger-1", "branch-1", ""),
			edge("e2", "branch-1", "recipe-1", flowstore.HandleFalse),
		},
	)

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger-1", "branch-1"}, result.Trace)
	assert.True(t, logContains(result.Log, "no edge for handle"))
}

func TestCycleSafety(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))

	// update-1 routes back to itself
	flow := testFlow("flow-cycle",
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
			node("update-1", flowstore.NodeUpdateData, map[string]any{
				"targetField": "inventory_item.status",
				"newValue":    "expiring_soon",
			}),
		},
		[]flowstore.Edge{
			edge("e1", "trigger-1", "update-1", ""),
			edge("e2", "update-1", "update-1", ""),
		},
	)

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.NoError(t, err)
	assert.Len(t, result.Trace, 50, "step budget caps the cycle")
	assert.True(t, logContains(result.Log, "Step budget"))
}

func TestUnknownNodeTypeIsLoggedNoOp(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))

	flow := testFlow("flow-unknown",
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
			node("mystery-1", flowstore.NodeType("HoloDeck"), nil),
			node("notify-1", flowstore.NodeSendNotification, map[string]any{
				"channel": "push", "messageBody": "after the mystery",
			}),
		},
		[]flowstore.Edge{
			edge("e1", "trigger-1", "mystery-1", ""),
			edge("e2", "mystery-1", "notify-1", ""),
		},
	)

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger-1", "mystery-1", "notify-1"}, result.Trace)
	assert.True(t, logContains(result.Log, "unknown type"))
	assert.True(t, logContains(result.Log, "push notification delivered"))
}

// detonator is a handler that always fails, wired in to exercise the
// unexpected-error path.
type detonator struct{}

func (d *detonator) Execute(_ context.Context, s *step) (payload.Payload, error) {
	return s.Payload, stderrors.New("boom")
}

func TestUnexpectedNodeErrorAbortsWithPartialResult(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))
	env.engine.executor.handlers[flowstore.NodeType("Detonate")] = &detonator{}

	flow := testFlow("flow-fail",
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
			node("boom-1", flowstore.NodeType("Detonate"), nil),
			node("notify-1", flowstore.NodeSendNotification, map[string]any{
				"channel": "push", "messageBody": "unreachable",
			}),
		},
		[]flowstore.Edge{
			edge("e1", "trigger-1", "boom-1", ""),
			edge("e2", "boom-1", "notify-1", ""),
		},
	)

	result, err := env.engine.TestExecution(context.Background(), flow, "item-1")
	require.Error(t, err)
	require.NotNil(t, result, "partial result surfaced alongside the error")
	assert.Equal(t, []string{"trigger-1", "boom-1"}, result.Trace)
	assert.True(t, logContains(result.Log, "boom"))
	assert.Equal(t, 0, env.ledger.records)
}

func TestRunBatch(t *testing.T) {
	env := newTestEnv(
		expiringItem("item-1", "Dairy", 1),
		expiringItem("item-2", "Dairy", 10), // too far out, never matches
		expiringItem("item-3", "Produce", 0),
	)
	env.flows.flows = []*flowstore.Flow{
		expirationFlow("flow-1"), // dairy filter: matches item-1 only
		testFlow("flow-2",
			[]flowstore.Node{
				node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{
					"timeOffset": float64(1), "filterCategory": "all",
				}),
				node("notify-1", flowstore.NodeSendNotification, map[string]any{
					"channel": "push", "messageBody": "Use up {{inventory_item.name}}",
				}),
			},
			[]flowstore.Edge{edge("e1", "trigger-1", "notify-1", "")},
		), // matches item-1 and item-3
	}

	summary, err := env.engine.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Flows)
	assert.Equal(t, 3, summary.Items)
	assert.Equal(t, 3, summary.Matched)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, env.ledger.records)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	env := newTestEnv(
		expiringItem("item-1", "Dairy", 1),
		expiringItem("item-2", "Dairy", 1),
	)
	env.engine.executor.handlers[flowstore.NodeType("Detonate")] = &detonator{}

	env.flows.flows = []*flowstore.Flow{
		testFlow("flow-boom",
			[]flowstore.Node{
				node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{"timeOffset": float64(2)}),
				node("boom-1", flowstore.NodeType("Detonate"), nil),
			},
			[]flowstore.Edge{edge("e1", "trigger-1", "boom-1", "")},
		),
		expirationFlow("flow-ok"),
	}

	summary, err := env.engine.RunBatch(context.Background())
	require.NoError(t, err, "pair failures never abort the batch")

	assert.Equal(t, 4, summary.Matched)
	assert.Equal(t, 2, summary.Failed, "both items fail on the exploding flow")
	assert.Equal(t, 2, summary.Completed, "healthy flow still ran for both items")
}

func TestRunBatchSkipsFlowsWithoutStartNode(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))
	env.flows.flows = []*flowstore.Flow{testFlow("flow-empty", nil, nil)}

	summary, err := env.engine.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Matched)
}

func TestRunBatchDuplicateCountsAsCompleted(t *testing.T) {
	env := newTestEnv(expiringItem("item-1", "Dairy", 1))
	env.flows.flows = []*flowstore.Flow{expirationFlow("flow-1")}
	ctx := context.Background()

	first, err := env.engine.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Completed)

	second, err := env.engine.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Completed, "duplicate stop is a clean completion")
	assert.Equal(t, 1, env.ledger.records)
}
