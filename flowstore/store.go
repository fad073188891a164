package flowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/natsclient"
)

// Store persists Flow entities in NATS KV
type Store struct {
	kvStore *natsclient.KVStore
}

// NewStore creates a flow store backed by a KV bucket
func NewStore(ctx context.Context, natsClient *natsclient.Client) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(nil, "flowstore", "NewStore", "nats client cannot be nil")
	}

	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      "freshsaver_flows",
		Description: "Automation flow definitions",
		History:     10, // keep recent versions for recovery
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "NewStore", "create KV bucket")
	}

	return &Store{kvStore: natsClient.NewKVStore(bucket)}, nil
}

// Create creates a new flow; fails if the ID already exists
func (s *Store) Create(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return errors.WrapInvalid(nil, "flowstore", "Create", "flow cannot be nil")
	}
	if err := flow.Validate(); err != nil {
		return err
	}

	flow.Version = 1
	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	data, err := json.Marshal(flow)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Create", "marshal flow")
	}

	if _, err := s.kvStore.Create(ctx, flow.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(err, "flowstore", "Create", "flow already exists")
		}
		return errors.WrapTransient(err, "flowstore", "Create", "create in KV")
	}

	return nil
}

// Get retrieves a flow by ID
func (s *Store) Get(ctx context.Context, id string) (*Flow, error) {
	if id == "" {
		return nil, errors.WrapInvalid(nil, "flowstore", "Get", "flow ID cannot be empty")
	}

	entry, err := s.kvStore.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrFlowNotFound
		}
		return nil, errors.WrapTransient(err, "flowstore", "Get", "get from KV")
	}

	var flow Flow
	if err := json.Unmarshal(entry.Value, &flow); err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "Get", "unmarshal flow")
	}

	return &flow, nil
}

// Update updates an existing flow with optimistic concurrency control
func (s *Store) Update(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return errors.WrapInvalid(nil, "flowstore", "Update", "flow cannot be nil")
	}
	if err := flow.Validate(); err != nil {
		return err
	}

	current, err := s.Get(ctx, flow.ID)
	if err != nil {
		return err
	}
	if current.Version != flow.Version {
		return errors.WrapInvalid(
			fmt.Errorf("version mismatch: expected %d, got %d", current.Version, flow.Version),
			"flowstore", "Update", "conflict: flow was modified by another user")
	}

	flow.Version++
	flow.UpdatedAt = time.Now()

	data, err := json.Marshal(flow)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Update", "marshal flow")
	}

	if _, err := s.kvStore.Put(ctx, flow.ID, data); err != nil {
		return errors.WrapTransient(err, "flowstore", "Update", "put to KV")
	}

	return nil
}

// Publish marks a flow active and stamps last_published
func (s *Store) Publish(ctx context.Context, id string) error {
	flow, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	flow.IsActive = true
	flow.LastPublished = &now

	return s.Update(ctx, flow)
}

// Unpublish deactivates a flow so batch runs skip it
func (s *Store) Unpublish(ctx context.Context, id string) error {
	flow, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	flow.IsActive = false
	return s.Update(ctx, flow)
}

// Delete removes a flow by ID
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(nil, "flowstore", "Delete", "flow ID cannot be empty")
	}
	if err := s.kvStore.Delete(ctx, id); err != nil {
		return errors.WrapTransient(err, "flowstore", "Delete", "delete from KV")
	}
	return nil
}

// List retrieves all flows
func (s *Store) List(ctx context.Context) ([]*Flow, error) {
	keys, err := s.kvStore.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "List", "list KV keys")
	}

	flows := make([]*Flow, 0, len(keys))
	for _, key := range keys {
		flow, err := s.Get(ctx, key)
		if err != nil {
			return nil, errors.WrapTransient(err, "flowstore", "List",
				fmt.Sprintf("get flow %s", key))
		}
		flows = append(flows, flow)
	}

	return flows, nil
}

// ListActive retrieves all flows with is_active set; the batch entry point
// iterates exactly this set
func (s *Store) ListActive(ctx context.Context) ([]*Flow, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*Flow, 0, len(all))
	for _, flow := range all {
		if flow.IsActive {
			active = append(active, flow)
		}
	}
	return active, nil
}
