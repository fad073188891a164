package engine

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/inventory"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/ledger"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/payload"
)

// defaultStepBudget bounds one execution. A flow graph containing a cycle
// hits this cap and ends with a partial trace instead of looping forever.
const defaultStepBudget = 50

// walk drives one execution from the start node to a terminal state. The
// duplicate-delivery signal terminates cleanly; any other handler error
// aborts the walk and propagates with the partial trace and log preserved
// in the returned result.
func (e *Engine) walk(
	ctx context.Context,
	flow *flowstore.Flow,
	item *inventory.Item,
	start *flowstore.Node,
) (*ExecutionResult, error) {
	result := &ExecutionResult{
		FlowID: flow.ID,
		ItemID: item.ID,
		Trace:  []string{},
		Log:    []string{},
	}

	current := start
	pl := payload.New(string(start.Type), item.UserID, item.PayloadFields(e.now()))

	for steps := 0; current != nil; steps++ {
		if steps >= e.stepBudget {
			result.Log = append(result.Log,
				fmt.Sprintf("Step budget of %d reached, ending execution", e.stepBudget))
			e.logger.Warn("Step budget exhausted, flow graph may contain a cycle",
				"flow_id", flow.ID, "item_id", item.ID, "budget", e.stepBudget)
			break
		}

		result.Trace = append(result.Trace, current.ID)

		s := &step{Flow: flow, Node: current, Item: item, Payload: pl, log: &result.Log}
		next, err := e.executor.Execute(ctx, s)
		if err != nil {
			if stderrors.Is(err, ledger.ErrDuplicate) {
				result.Log = append(result.Log, "Execution stopped: notification already delivered")
				break
			}
			result.Log = append(result.Log,
				fmt.Sprintf("Node %s failed: %v", current.ID, err))
			result.FinalPayload = pl
			e.logger.Error("Node execution failed",
				"flow_id", flow.ID, "item_id", item.ID, "node_id", current.ID, "error", err)
			return result, errors.WrapTransient(err, "engine", "walk",
				fmt.Sprintf("execute node %s", current.ID))
		}
		pl = next

		current = e.nextNode(flow, current, pl, result)
	}

	result.FinalPayload = pl
	return result, nil
}

// nextNode resolves which node to visit after the current one. Conditional
// branches follow the edge whose source handle matches the evaluated
// condition; every other node type follows its first outgoing edge. No
// matching edge means the path terminated.
func (e *Engine) nextNode(
	flow *flowstore.Flow,
	current *flowstore.Node,
	pl payload.Payload,
	result *ExecutionResult,
) *flowstore.Node {
	edges := flow.OutgoingEdges(current.ID)
	if len(edges) == 0 {
		return nil
	}

	var chosen *flowstore.Edge
	if current.Type == flowstore.NodeConditionalBranch {
		handle := flowstore.HandleFalse
		if e.evaluator.Evaluate(pl, conditionFromNode(current)) {
			handle = flowstore.HandleTrue
		}
		for i := range edges {
			if edges[i].SourceHandle == handle {
				chosen = &edges[i]
				break
			}
		}
		if chosen == nil {
			result.Log = append(result.Log,
				fmt.Sprintf("Node %s: no edge for handle '%s', path ends", current.ID, handle))
			return nil
		}
	} else {
		chosen = &edges[0]
	}

	next := flow.Node(chosen.Target)
	if next == nil {
		// Validation prevents dangling edges; a stored flow predating
		// validation still degrades to a clean terminal.
		result.Log = append(result.Log,
			fmt.Sprintf("Edge %s targets missing node '%s', path ends", chosen.ID, chosen.Target))
		return nil
	}
	return next
}
