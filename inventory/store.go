package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/natsclient"
)

// Store persists inventory items in NATS KV
type Store struct {
	kvStore *natsclient.KVStore
}

// NewStore creates an item store backed by a KV bucket
func NewStore(ctx context.Context, natsClient *natsclient.Client) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(nil, "inventory", "NewStore", "nats client cannot be nil")
	}

	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      "freshsaver_items",
		Description: "Kitchen inventory items",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "inventory", "NewStore", "create KV bucket")
	}

	return &Store{kvStore: natsClient.NewKVStore(bucket)}, nil
}

// Find retrieves an item by ID
func (s *Store) Find(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, errors.WrapInvalid(nil, "inventory", "Find", "item ID cannot be empty")
	}

	entry, err := s.kvStore.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrItemNotFound
		}
		return nil, errors.WrapTransient(err, "inventory", "Find", "get from KV")
	}

	var item Item
	if err := json.Unmarshal(entry.Value, &item); err != nil {
		return nil, errors.WrapFatal(err, "inventory", "Find", "unmarshal item")
	}
	return &item, nil
}

// Put creates or replaces an item
func (s *Store) Put(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.WrapInvalid(nil, "inventory", "Put", "item cannot be nil")
	}
	if item.ID == "" {
		return errors.WrapInvalid(nil, "inventory", "Put", "item ID cannot be empty")
	}

	item.UpdatedAt = time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = item.UpdatedAt
	}

	data, err := json.Marshal(item)
	if err != nil {
		return errors.WrapFatal(err, "inventory", "Put", "marshal item")
	}
	if _, err := s.kvStore.Put(ctx, item.ID, data); err != nil {
		return errors.WrapTransient(err, "inventory", "Put", "put to KV")
	}
	return nil
}

// ListAll retrieves every item
func (s *Store) ListAll(ctx context.Context) ([]*Item, error) {
	keys, err := s.kvStore.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "inventory", "ListAll", "list KV keys")
	}

	items := make([]*Item, 0, len(keys))
	for _, key := range keys {
		item, err := s.Find(ctx, key)
		if err != nil {
			return nil, errors.WrapTransient(err, "inventory", "ListAll",
				fmt.Sprintf("get item %s", key))
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateStatus sets an item's status with a CAS read-modify-write so
// concurrent flow executions don't clobber other field updates
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	if id == "" {
		return errors.WrapInvalid(nil, "inventory", "UpdateStatus", "item ID cannot be empty")
	}

	err := s.kvStore.UpdateWithRetry(ctx, id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.ErrItemNotFound
		}
		var item Item
		if err := json.Unmarshal(current, &item); err != nil {
			return nil, err
		}
		item.Status = status
		item.UpdatedAt = time.Now()
		return json.Marshal(item)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.ErrItemNotFound
		}
		return errors.WrapTransient(err, "inventory", "UpdateStatus", "update in KV")
	}
	return nil
}
