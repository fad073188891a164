// Package engine is the automation flow runtime: it matches inventory items
// against flow triggers, walks the flow graph node by node, executes side
// effects through injected collaborators, and assembles the execution trace
// and human-readable log that flow authors debug with.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/condition"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/credstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/inventory"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/metric"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/payload"
)

// ErrNoMatch reports that an item does not satisfy a flow's trigger. It is a
// normal outcome of test execution, distinguishable from execution errors.
var ErrNoMatch = stderrors.New("engine: item does not match flow trigger")

// Collaborator contracts. Concrete implementations live in their own
// packages; the engine depends only on these so the walker and executor are
// testable against fakes.

// ItemStore reads and mutates inventory items
type ItemStore interface {
	Find(ctx context.Context, id string) (*inventory.Item, error)
	ListAll(ctx context.Context) ([]*inventory.Item, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// FlowSource lists the flows eligible for batch execution
type FlowSource interface {
	ListActive(ctx context.Context) ([]*flowstore.Flow, error)
}

// Ledger is the at-most-once notification delivery ledger. Record must be an
// atomic conditional insert returning ledger.ErrDuplicate when an entry for
// the pair already exists.
type Ledger interface {
	Record(ctx context.Context, flowID, itemID, message string) error
	Exists(ctx context.Context, flowID, itemID string) (bool, error)
}

// CredentialSource resolves opaque credentials by ID
type CredentialSource interface {
	Find(ctx context.Context, id string) (*credstore.Credential, error)
}

// Notifier delivers SMS and email notifications
type Notifier interface {
	SendSMS(ctx context.Context, to, message string) (string, error)
	SendEmail(ctx context.Context, to, subject, body string) error
}

// RecipeGenerator produces recipe suggestions from a rendered prompt
type RecipeGenerator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// WebhookSender delivers payloads to user-configured endpoints
type WebhookSender interface {
	Deliver(ctx context.Context, targetURL, method string, body []byte) error
}

// Collaborators bundles everything the engine needs injected
type Collaborators struct {
	Items       ItemStore
	Flows       FlowSource
	Ledger      Ledger
	Credentials CredentialSource
	Notifier    Notifier
	Recipes     RecipeGenerator
	Webhooks    WebhookSender
}

func (c *Collaborators) validate() error {
	if c.Items == nil || c.Flows == nil || c.Ledger == nil {
		return errors.WrapInvalid(
			fmt.Errorf("item store, flow source, and ledger are required"),
			"engine", "New", "validate collaborators")
	}
	return nil
}

// ExecutionResult is the outcome of one graph walk: the ordered node trace,
// the human-readable log, and the final payload.
type ExecutionResult struct {
	FlowID       string          `json:"flow_id"`
	ItemID       string          `json:"item_id"`
	Trace        []string        `json:"trace"`
	Log          []string        `json:"log"`
	FinalPayload payload.Payload `json:"final_payload"`
}

// BatchSummary aggregates one batch run
type BatchSummary struct {
	Flows     int `json:"flows"`
	Items     int `json:"items"`
	Matched   int `json:"matched"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Engine is the flow execution façade
type Engine struct {
	collab     Collaborators
	evaluator  *condition.Evaluator
	executor   *executor
	stepBudget int
	logger     *slog.Logger
	metrics    *engineMetrics
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With("component", "engine")
		}
	}
}

// WithStepBudget overrides the per-execution step budget
func WithStepBudget(budget int) Option {
	return func(e *Engine) {
		if budget > 0 {
			e.stepBudget = budget
		}
	}
}

// WithMetricsRegistry enables engine metrics on the given registry
func WithMetricsRegistry(registry *metric.Registry) Option {
	return func(e *Engine) {
		m, err := newEngineMetrics(registry)
		if err != nil {
			e.logger.Warn("Engine metrics disabled", "error", err)
			return
		}
		e.metrics = m
	}
}

// withClock overrides the time source in tests
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine with the given collaborators
func New(collab Collaborators, opts ...Option) (*Engine, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		collab:     collab,
		evaluator:  condition.NewEvaluator(),
		stepBudget: defaultStepBudget,
		logger:     slog.Default().With("component", "engine"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.executor = newExecutor(collab, e.logger, e.metrics)
	return e, nil
}

// TestExecution runs a single flow against a single item and returns the
// full trace, log, and final payload for interactive inspection. Returns
// ErrNoMatch when the item does not satisfy the flow's trigger. On an
// execution error the partial result is returned alongside the error so the
// log and trace up to the failure point stay visible.
func (e *Engine) TestExecution(ctx context.Context, flow *flowstore.Flow, itemID string) (*ExecutionResult, error) {
	if flow == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("flow is nil"), "engine", "TestExecution", "validate input")
	}

	item, err := e.collab.Items.Find(ctx, itemID)
	if err != nil {
		return nil, err
	}

	start := flow.StartNode()
	if start == nil || !e.MatchesTrigger(item, start) {
		e.recordExecution(flow.ID, outcomeNoMatch)
		return nil, ErrNoMatch
	}

	result, err := e.walk(ctx, flow, item, start)
	if err != nil {
		e.recordExecution(flow.ID, outcomeFailed)
		return result, err
	}
	e.recordExecution(flow.ID, outcomeCompleted)
	return result, nil
}

// RunBatch evaluates every active flow against every known item and executes
// each matching pair to completion. One pair's failure never aborts the
// remaining pairs; failures are logged and counted.
func (e *Engine) RunBatch(ctx context.Context) (*BatchSummary, error) {
	started := e.now()

	flows, err := e.collab.Flows.ListActive(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "engine", "RunBatch", "list active flows")
	}
	items, err := e.collab.Items.ListAll(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "engine", "RunBatch", "list items")
	}

	summary := &BatchSummary{Flows: len(flows), Items: len(items)}

	for _, flow := range flows {
		start := flow.StartNode()
		if start == nil {
			continue
		}
		for _, item := range items {
			if ctx.Err() != nil {
				return summary, errors.WrapTransient(ctx.Err(), "engine", "RunBatch", "batch cancelled")
			}
			if !e.MatchesTrigger(item, start) {
				continue
			}
			summary.Matched++

			if _, err := e.walk(ctx, flow, item, start); err != nil {
				summary.Failed++
				e.recordExecution(flow.ID, outcomeFailed)
				e.logger.Error("Batch execution failed",
					"flow_id", flow.ID, "item_id", item.ID, "error", err)
				continue
			}
			summary.Completed++
			e.recordExecution(flow.ID, outcomeCompleted)
		}
	}

	e.recordBatch(e.now().Sub(started))
	e.logger.Info("Batch run complete",
		"flows", summary.Flows, "items", summary.Items,
		"matched", summary.Matched, "completed", summary.Completed, "failed", summary.Failed)
	return summary, nil
}
