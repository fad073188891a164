package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/credstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/inventory"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/ledger"
)

// In-memory collaborator fakes. They mirror the contract of the concrete
// NATS-backed stores closely enough for the walker and executor tests,
// including the ledger's atomic conditional insert.

type fakeItems struct {
	mu    sync.Mutex
	items map[string]*inventory.Item
}

func newFakeItems(items ...*inventory.Item) *fakeItems {
	f := &fakeItems{items: make(map[string]*inventory.Item, len(items))}
	for _, item := range items {
		f.items[item.ID] = item
	}
	return f
}

func (f *fakeItems) Find(_ context.Context, id string) (*inventory.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, errors.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeItems) ListAll(_ context.Context) ([]*inventory.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*inventory.Item, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeItems) UpdateStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return errors.ErrItemNotFound
	}
	item.Status = status
	return nil
}

type fakeFlows struct {
	flows []*flowstore.Flow
}

func (f *fakeFlows) ListActive(_ context.Context) ([]*flowstore.Flow, error) {
	return f.flows, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]string
	records int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]string)}
}

func (f *fakeLedger) Record(_ context.Context, flowID, itemID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ledger.Key(flowID, itemID)
	if _, exists := f.entries[key]; exists {
		return ledger.ErrDuplicate
	}
	f.entries[key] = message
	f.records++
	return nil
}

func (f *fakeLedger) Exists(_ context.Context, flowID, itemID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[ledger.Key(flowID, itemID)]
	return ok, nil
}

type fakeCreds struct {
	creds map[string]*credstore.Credential
}

func (f *fakeCreds) Find(_ context.Context, id string) (*credstore.Credential, error) {
	cred, ok := f.creds[id]
	if !ok {
		return nil, errors.ErrCredentialNotFound
	}
	return cred, nil
}

type sentMessage struct {
	Channel string
	To      string
	Body    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) SendSMS(_ context.Context, to, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{Channel: "sms", To: to, Body: message})
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{Channel: "email", To: to, Body: subject + ": " + body})
	return nil
}

func (f *fakeNotifier) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecipes struct {
	suggestions string
	err         error
	gotPrompt   string
	gotKey      string
}

func (f *fakeRecipes) Generate(_ context.Context, apiKey, prompt string) (string, error) {
	f.gotKey = apiKey
	f.gotPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.suggestions, nil
}

type webhookCall struct {
	URL    string
	Method string
	Body   []byte
}

type fakeWebhooks struct {
	calls []webhookCall
	err   error
}

func (f *fakeWebhooks) Deliver(_ context.Context, targetURL, method string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, webhookCall{URL: targetURL, Method: method, Body: body})
	return nil
}

func testCredential(id, secret string) *credstore.Credential {
	return &credstore.Credential{ID: id, Name: "credential " + id, Type: "api_key", Secret: secret}
}

// Flow and item builders

func testClock() func() time.Time {
	fixed := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return fixed }
}

// expiringItem builds an item whose expiration is daysFromNow days after the
// test clock's today, at noon.
func expiringItem(id, category string, daysFromNow int) *inventory.Item {
	now := testClock()()
	exp := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC).
		AddDate(0, 0, daysFromNow)
	return &inventory.Item{
		ID:             id,
		UserID:         "user-1",
		Name:           "Milk",
		Category:       category,
		Location:       "Fridge",
		Status:         "active",
		Quantity:       1,
		ExpirationDate: &exp,
	}
}

func node(id string, nodeType flowstore.NodeType, config map[string]any) flowstore.Node {
	return flowstore.Node{ID: id, Type: nodeType, Config: config}
}

func edge(id, source, target, handle string) flowstore.Edge {
	return flowstore.Edge{ID: id, Source: source, Target: target, SourceHandle: handle}
}

func testFlow(id string, nodes []flowstore.Node, edges []flowstore.Edge) *flowstore.Flow {
	return &flowstore.Flow{
		ID:       id,
		Name:     "test flow " + id,
		Nodes:    nodes,
		Edges:    edges,
		IsActive: true,
	}
}

// expirationFlow is the canonical linear flow: expiration trigger into a
// push notification.
func expirationFlow(id string) *flowstore.Flow {
	return testFlow(id,
		[]flowstore.Node{
			node("trigger-1", flowstore.NodeExpirationTrigger, map[string]any{
				"timeOffset":     float64(2),
				"filterCategory": "dairy",
			}),
			node("notify-1", flowstore.NodeSendNotification, map[string]any{
				"channel":     "push",
				"messageBody": "Expiring: {{inventory_item.name}}",
			}),
		},
		[]flowstore.Edge{edge("e1", "trigger-1", "notify-1", "")},
	)
}

type testEnv struct {
	engine   *Engine
	items    *fakeItems
	flows    *fakeFlows
	ledger   *fakeLedger
	creds    *fakeCreds
	notifier *fakeNotifier
	recipes  *fakeRecipes
	webhooks *fakeWebhooks
}

func newTestEnv(items ...*inventory.Item) *testEnv {
	env := &testEnv{
		items:    newFakeItems(items...),
		flows:    &fakeFlows{},
		ledger:   newFakeLedger(),
		creds:    &fakeCreds{creds: map[string]*credstore.Credential{}},
		notifier: &fakeNotifier{},
		recipes:  &fakeRecipes{suggestions: "1. Milk pancakes"},
		webhooks: &fakeWebhooks{},
	}

	eng, err := New(Collaborators{
		Items:       env.items,
		Flows:       env.flows,
		Ledger:      env.ledger,
		Credentials: env.creds,
		Notifier:    env.notifier,
		Recipes:     env.recipes,
		Webhooks:    env.webhooks,
	}, withClock(testClock()))
	if err != nil {
		panic(err)
	}
	env.engine = eng
	return env
}
