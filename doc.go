// Package freshsaver is the FreshSaver automation flow engine: a runtime for
// user-authored automation flows over kitchen inventory.
//
// A flow is a directed graph of nodes drawn in the flow editor. Trigger nodes
// decide which inventory items a flow applies to (expiration proximity,
// status changes), logic nodes branch on payload fields, and action nodes
// perform side effects: notifications, AI recipe suggestions, data updates,
// and webhook calls. The engine walks the graph per (flow, item) pair,
// threading a structured payload through each node and collecting a
// human-readable log for the editor.
//
// Notifications are delivered at most once per (flow, item) pair. The
// deduplication ledger's conditional insert is the uniqueness check, so
// concurrent executions cannot double-send.
//
// Package layout:
//
//   - engine: trigger matching, graph walking, node handlers
//   - flowstore, inventory, ledger, credstore: NATS KV persistence
//   - condition, payload: condition evaluation and payload plumbing
//   - delivery, recipe: outbound notification, webhook, and AI clients
//   - gateway: HTTP API, metrics, and the execution log websocket stream
//   - scheduler: periodic batch evaluation
//   - config, errors, metric, natsclient: shared infrastructure
//
// The flowengine binary under cmd wires everything together.
package freshsaver
