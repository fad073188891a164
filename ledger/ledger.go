// Package ledger implements the notification deduplication ledger. A ledger
// entry for a (flow, item) pair means a notification was already delivered
// for that pairing and must not be sent again.
//
// Record is an atomic conditional insert: the KV write itself is the
// uniqueness check, so two overlapping executions cannot both observe
// "no entry" and both send. The loser of the race gets ErrDuplicate.
package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/natsclient"
)

// ErrDuplicate is the distinguished duplicate-delivery signal. Expected and
// non-fatal: the graph walker treats it as a clean early stop.
var ErrDuplicate = stderrors.New("ledger: notification already recorded for this flow and item")

// Entry is one recorded delivery
type Entry struct {
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	FlowID  string    `json:"flow_id"`
	ItemID  string    `json:"item_id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// Key derives the deterministic dedup key for a (flow, item) pair
func Key(flowID, itemID string) string {
	return fmt.Sprintf("notif.%s.%s", flowID, itemID)
}

// Store persists ledger entries in NATS KV
type Store struct {
	kvStore *natsclient.KVStore
}

// NewStore creates a ledger store backed by a KV bucket
func NewStore(ctx context.Context, natsClient *natsclient.Client) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(nil, "ledger", "NewStore", "nats client cannot be nil")
	}

	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      "freshsaver_notification_ledger",
		Description: "At-most-once notification delivery ledger",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "ledger", "NewStore", "create KV bucket")
	}

	return &Store{kvStore: natsClient.NewKVStore(bucket)}, nil
}

// Record inserts a ledger entry for the (flow, item) pair. Returns
// ErrDuplicate if an entry already exists. Callers record only after a
// confirmed successful send, so failed sends stay retryable.
func (s *Store) Record(ctx context.Context, flowID, itemID, message string) error {
	if flowID == "" || itemID == "" {
		return errors.WrapInvalid(nil, "ledger", "Record", "flow ID and item ID are required")
	}

	key := Key(flowID, itemID)
	entry := Entry{
		ID:      uuid.NewString(),
		Key:     key,
		FlowID:  flowID,
		ItemID:  itemID,
		Message: message,
		SentAt:  time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.WrapFatal(err, "ledger", "Record", "marshal entry")
	}

	if _, err := s.kvStore.Create(ctx, key, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return ErrDuplicate
		}
		return errors.WrapTransient(err, "ledger", "Record", "create in KV")
	}
	return nil
}

// Exists reports whether a delivery is already recorded for the pair.
// Inspection helper for tooling; the delivery path relies on Record's
// atomicity, not on this check.
func (s *Store) Exists(ctx context.Context, flowID, itemID string) (bool, error) {
	_, err := s.kvStore.Get(ctx, Key(flowID, itemID))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "ledger", "Exists", "get from KV")
	}
	return true, nil
}

// Get retrieves the recorded entry for a pair, if any
func (s *Store) Get(ctx context.Context, flowID, itemID string) (*Entry, error) {
	kvEntry, err := s.kvStore.Get(ctx, Key(flowID, itemID))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.WrapTransient(err, "ledger", "Get", "get from KV")
	}

	var entry Entry
	if err := json.Unmarshal(kvEntry.Value, &entry); err != nil {
		return nil, errors.WrapFatal(err, "ledger", "Get", "unmarshal entry")
	}
	return &entry, nil
}
