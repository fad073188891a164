package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/condition"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/inventory"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/payload"
)

// step carries the execution state a handler sees for one node. Handlers
// return the (possibly replaced) payload; log lines accrete on the shared
// slice so partial logs survive failures.
type step struct {
	Flow    *flowstore.Flow
	Node    *flowstore.Node
	Item    *inventory.Item
	Payload payload.Payload

	log *[]string
}

// Logf appends a line to the execution log
func (s *step) Logf(format string, args ...any) {
	*s.log = append(*s.log, fmt.Sprintf(format, args...))
}

// nodeHandler executes one node type's side effect. A handler never mutates
// the incoming payload in place; it returns the payload for the next step.
// The only errors a handler returns are the duplicate-delivery signal
// (ledger.ErrDuplicate) and genuinely unexpected failures; configuration
// gaps and external call failures are logged and absorbed.
type nodeHandler interface {
	Execute(ctx context.Context, s *step) (payload.Payload, error)
}

// executor dispatches nodes to handlers through a registry keyed by node
// type. Unregistered types execute as logged no-ops.
type executor struct {
	handlers map[flowstore.NodeType]nodeHandler
	logger   *slog.Logger
	metrics  *engineMetrics
	now      func() time.Time
}

func newExecutor(collab Collaborators, logger *slog.Logger, metrics *engineMetrics) *executor {
	ex := &executor{
		handlers: make(map[flowstore.NodeType]nodeHandler),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}

	// Triggers have no execution effect; they only gate entry. Registering
	// them keeps the trace log uniform.
	ex.handlers[flowstore.NodeExpirationTrigger] = &triggerHandler{}
	ex.handlers[flowstore.NodeInventoryStatusTrigger] = &triggerHandler{}
	ex.handlers[flowstore.NodeConditionalBranch] = &branchHandler{evaluator: condition.NewEvaluator()}
	ex.handlers[flowstore.NodeSendNotification] = &notificationHandler{
		ledger: collab.Ledger, notifier: collab.Notifier, metrics: metrics, logger: logger,
	}
	ex.handlers[flowstore.NodeUpdateData] = &updateDataHandler{items: collab.Items}
	ex.handlers[flowstore.NodeGenerateRecipe] = &recipeHandler{
		credentials: collab.Credentials, generator: collab.Recipes,
	}
	ex.handlers[flowstore.NodeWebhookDelivery] = &webhookHandler{webhooks: collab.Webhooks}
	ex.handlers[flowstore.NodePartnerIntegration] = &partnerHandler{credentials: collab.Credentials}

	return ex
}

// Execute runs one node and returns the payload for the next step
func (ex *executor) Execute(ctx context.Context, s *step) (payload.Payload, error) {
	handler, ok := ex.handlers[s.Node.Type]
	if !ok {
		s.Logf("Node %s: unknown type '%s', skipping", s.Node.ID, s.Node.Type)
		ex.logger.Warn("Unknown node type", "node_id", s.Node.ID, "type", s.Node.Type)
		return s.Payload, nil
	}

	started := ex.now()
	out, err := handler.Execute(ctx, s)
	ex.metrics.recordNodeExecution(string(s.Node.Type), ex.now().Sub(started))
	return out, err
}
