package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/condition"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/ledger"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/payload"
)

// Node config fields shared by handlers
const (
	cfgCheckField   = "checkField"
	cfgOperator     = "operator"
	cfgCheckValue   = "checkValue"
	cfgChannel      = "channel"
	cfgRecipient    = "recipient"
	cfgSubject      = "subject"
	cfgMessageBody  = "messageBody"
	cfgTargetField  = "targetField"
	cfgNewValue     = "newValue"
	cfgPrompt       = "prompt"
	cfgCredentialID = "credentialId"
	cfgTargetURL    = "targetUrl"
	cfgHTTPMethod   = "httpMethod"
	cfgBodyTemplate = "bodyTemplate"
	cfgAction       = "action"
)

// Payload enrichment keys written by action nodes
const (
	keyRecipeSuggestions = "recipe_suggestions"
	keyRecipeError       = "recipe_error"
)

// statusField is the only mutation target UpdateData supports
const statusField = "inventory_item.status"

// conditionFromNode reads the branch condition triple out of a node config
func conditionFromNode(node *flowstore.Node) condition.Condition {
	return condition.Condition{
		Field:    node.ConfigString(cfgCheckField),
		Operator: node.ConfigString(cfgOperator),
		Value:    node.ConfigValue(cfgCheckValue),
	}
}

// triggerHandler is the no-op executed when the walk passes through the
// trigger node itself; matching already happened before the walk started.
type triggerHandler struct{}

func (h *triggerHandler) Execute(_ context.Context, s *step) (payload.Payload, error) {
	s.Logf("Node %s: trigger '%s' matched item '%s'", s.Node.ID, s.Node.Type, s.Item.Name)
	return s.Payload, nil
}

// branchHandler evaluates the branch condition for the log. Routing uses the
// same pure evaluation in the walker, so both always agree.
type branchHandler struct {
	evaluator *condition.Evaluator
}

func (h *branchHandler) Execute(_ context.Context, s *step) (payload.Payload, error) {
	cond := conditionFromNode(s.Node)
	result := h.evaluator.Evaluate(s.Payload, cond)
	s.Logf("Node %s: condition '%s %s %s' evaluated %t",
		s.Node.ID, cond.Field, cond.Operator, payload.Stringify(cond.Value), result)
	return s.Payload, nil
}

// notificationHandler delivers a notification at most once per (flow, item)
// pair. The ledger entry is written only after a confirmed successful send;
// the atomic Record is the authoritative uniqueness check and its duplicate
// signal stops the walk cleanly.
type notificationHandler struct {
	ledger   Ledger
	notifier Notifier
	metrics  *engineMetrics
	logger   *slog.Logger
}

func (h *notificationHandler) Execute(ctx context.Context, s *step) (payload.Payload, error) {
	exists, err := h.ledger.Exists(ctx, s.Flow.ID, s.Item.ID)
	if err != nil {
		// The atomic record below still guards against double sends
		s.Logf("Node %s: dedup check failed: %v", s.Node.ID, err)
	}
	if exists {
		s.Logf("Node %s: notification already sent for this flow and item, skipping", s.Node.ID)
		h.metrics.recordNotification(s.Node.ConfigString(cfgChannel), "deduped")
		return s.Payload, ledger.ErrDuplicate
	}

	channel := strings.ToLower(strings.TrimSpace(s.Node.ConfigString(cfgChannel)))
	message := s.Payload.Render(s.Node.ConfigString(cfgMessageBody))

	switch channel {
	case "sms":
		return h.sendSMS(ctx, s, message)
	case "email":
		return h.sendEmail(ctx, s, message)
	case "push":
		// Simulated synchronous channel, always succeeds
		s.Logf("Node %s: push notification delivered: %s", s.Node.ID, message)
		return h.record(ctx, s, "push", message)
	default:
		s.Logf("Node %s: unknown channel '%s', skipping", s.Node.ID, channel)
		return s.Payload, nil
	}
}

func (h *notificationHandler) sendSMS(ctx context.Context, s *step, message string) (payload.Payload, error) {
	recipient := s.Node.ConfigString(cfgRecipient)
	if recipient == "" || h.notifier == nil {
		s.Logf("Node %s: sms not sent, recipient or delivery provider missing", s.Node.ID)
		return s.Payload, nil
	}

	messageID, err := h.notifier.SendSMS(ctx, recipient, message)
	if err != nil {
		s.Logf("Node %s: sms delivery failed: %v", s.Node.ID, err)
		h.metrics.recordNotification("sms", "failed")
		return s.Payload, nil
	}
	s.Logf("Node %s: sms delivered to %s (id %s)", s.Node.ID, recipient, messageID)
	return h.record(ctx, s, "sms", message)
}

func (h *notificationHandler) sendEmail(ctx context.Context, s *step, message string) (payload.Payload, error) {
	recipient := s.Node.ConfigString(cfgRecipient)
	if recipient == "" || h.notifier == nil {
		s.Logf("Node %s: email not sent, recipient or delivery provider missing", s.Node.ID)
		return s.Payload, nil
	}

	subject := s.Payload.Render(s.Node.ConfigString(cfgSubject))
	if subject == "" {
		subject = "FreshSaver notification"
	}

	if err := h.notifier.SendEmail(ctx, recipient, subject, message); err != nil {
		s.Logf("Node %s: email delivery failed: %v", s.Node.ID, err)
		h.metrics.recordNotification("email", "failed")
		return s.Payload, nil
	}
	s.Logf("Node %s: email delivered to %s", s.Node.ID, recipient)
	return h.record(ctx, s, "email", message)
}

// record writes the dedup ledger entry after a confirmed send. Losing the
// record race means another execution delivered concurrently; that is the
// duplicate signal too.
func (h *notificationHandler) record(ctx context.Context, s *step, channel, message string) (payload.Payload, error) {
	if err := h.ledger.Record(ctx, s.Flow.ID, s.Item.ID, message); err != nil {
		if stderrors.Is(err, ledger.ErrDuplicate) {
			s.Logf("Node %s: concurrent delivery detected, stopping", s.Node.ID)
			h.metrics.recordNotification(channel, "deduped")
			return s.Payload, ledger.ErrDuplicate
		}
		// Notification went out but the ledger write failed; log loudly,
		// a later cycle may re-send.
		s.Logf("Node %s: ledger write failed: %v", s.Node.ID, err)
		h.logger.Error("Dedup ledger write failed after successful send",
			"flow_id", s.Flow.ID, "item_id", s.Item.ID, "error", err)
		return s.Payload, nil
	}
	h.metrics.recordNotification(channel, "sent")
	return s.Payload, nil
}

// updateDataHandler mutates the inventory item's status, keeping the payload
// in lockstep with persisted state for downstream nodes.
type updateDataHandler struct {
	items ItemStore
}

func (h *updateDataHandler) Execute(ctx context.Context, s *step) (payload.Payload, error) {
	targetField := s.Node.ConfigString(cfgTargetField)
	if targetField != statusField {
		s.Logf("Node %s: unsupported target field '%s', no change", s.Node.ID, targetField)
		return s.Payload, nil
	}

	newValue := s.Node.ConfigString(cfgNewValue)
	if newValue == "" {
		s.Logf("Node %s: newValue not configured, no change", s.Node.ID)
		return s.Payload, nil
	}

	if err := h.items.UpdateStatus(ctx, s.Item.ID, newValue); err != nil {
		s.Logf("Node %s: status update failed: %v", s.Node.ID, err)
		return s.Payload, nil
	}

	s.Item.Status = newValue
	s.Logf("Node %s: item status updated to '%s'", s.Node.ID, newValue)
	return s.Payload.WithItemField("status", newValue), nil
}

// recipeHandler calls the AI generation collaborator. Failure is never fatal
// to the flow; either outcome is recorded under related_data so downstream
// nodes and the flow author can see what happened.
type recipeHandler struct {
	credentials CredentialSource
	generator   RecipeGenerator
}

func (h *recipeHandler) Execute(ctx context.Context, s *step) (payload.Payload, error) {
	prompt := s.Node.ConfigString(cfgPrompt)
	credID := s.Node.ConfigString(cfgCredentialID)
	if prompt == "" || credID == "" {
		s.Logf("Node %s: recipe generation needs both prompt and credentialId", s.Node.ID)
		return s.Payload.Enrich(keyRecipeError, "prompt and credentialId are required"), nil
	}

	if h.credentials == nil || h.generator == nil {
		s.Logf("Node %s: recipe generation not configured", s.Node.ID)
		return s.Payload.Enrich(keyRecipeError, "recipe generation unavailable"), nil
	}

	cred, err := h.credentials.Find(ctx, credID)
	if err != nil {
		s.Logf("Node %s: credential '%s' lookup failed: %v", s.Node.ID, credID, err)
		return s.Payload.Enrich(keyRecipeError, "credential not found: "+credID), nil
	}

	rendered := s.Payload.Render(prompt)
	suggestions, err := h.generator.Generate(ctx, cred.Secret, rendered)
	if err != nil {
		s.Logf("Node %s: recipe generation failed: %v", s.Node.ID, err)
		return s.Payload.Enrich(keyRecipeError, err.Error()), nil
	}

	s.Logf("Node %s: recipe suggestions generated", s.Node.ID)
	return s.Payload.Enrich(keyRecipeSuggestions, suggestions), nil
}

// webhookHandler delivers the payload to a user-configured endpoint.
// Delivery failures are logged, never raised.
type webhookHandler struct {
	webhooks WebhookSender
}

func (h *webhookHandler) Execute(ctx context.Context, s *step) (payload.Payload, error) {
	target := s.Node.ConfigString(cfgTargetURL)
	if target == "" || h.webhooks == nil {
		s.Logf("Node %s: webhook not delivered, targetUrl or sender missing", s.Node.ID)
		return s.Payload, nil
	}

	var body []byte
	if tmpl := s.Node.ConfigString(cfgBodyTemplate); tmpl != "" {
		body = []byte(s.Payload.Render(tmpl))
	} else {
		var err error
		body, err = json.Marshal(s.Payload)
		if err != nil {
			s.Logf("Node %s: payload serialization failed: %v", s.Node.ID, err)
			return s.Payload, nil
		}
	}

	method := s.Node.ConfigString(cfgHTTPMethod)
	if err := h.webhooks.Deliver(ctx, target, method, body); err != nil {
		s.Logf("Node %s: webhook delivery to %s failed: %v", s.Node.ID, target, err)
		return s.Payload, nil
	}
	s.Logf("Node %s: webhook delivered to %s", s.Node.ID, target)
	return s.Payload, nil
}

// partnerHandler performs a simulated authenticated partner call: credential
// lookup plus a log line, no payload mutation.
type partnerHandler struct {
	credentials CredentialSource
}

func (h *partnerHandler) Execute(ctx context.Context, s *step) (payload.Payload, error) {
	credID := s.Node.ConfigString(cfgCredentialID)
	if credID == "" || h.credentials == nil {
		s.Logf("Node %s: partner integration needs a credentialId", s.Node.ID)
		return s.Payload, nil
	}

	cred, err := h.credentials.Find(ctx, credID)
	if err != nil {
		s.Logf("Node %s: credential '%s' lookup failed: %v", s.Node.ID, credID, err)
		return s.Payload, nil
	}

	action := s.Node.ConfigString(cfgAction)
	if action == "" {
		action = "sync"
	}
	s.Logf("Node %s: partner action '%s' performed as '%s'", s.Node.ID, action, cred.Name)
	return s.Payload, nil
}
