// Package credstore manages opaque partner and AI credentials. Secrets are
// read-only to the engine and never logged; use Redacted for log output.
package credstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/natsclient"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/pkg/cache"
)

// Credential is an opaque secret reference looked up by ID
type Credential struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Secret   string            `json:"secret"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Redacted returns a copy safe for logging
func (c *Credential) Redacted() Credential {
	out := *c
	out.Secret = "[REDACTED]"
	return out
}

// Store persists credentials in NATS KV with a short-lived read cache so
// per-node lookups during graph execution don't hit the bucket every step.
type Store struct {
	kvStore *natsclient.KVStore
	cache   cache.Cache[*Credential]
}

// NewStore creates a credential store backed by a KV bucket
func NewStore(ctx context.Context, natsClient *natsclient.Client) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(nil, "credstore", "NewStore", "nats client cannot be nil")
	}

	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      "freshsaver_credentials",
		Description: "Partner and AI service credentials",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "credstore", "NewStore", "create KV bucket")
	}

	credCache, err := cache.NewTTL[*Credential](ctx, time.Minute, 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Store{
		kvStore: natsClient.NewKVStore(bucket),
		cache:   credCache,
	}, nil
}

// Find retrieves a credential by ID
func (s *Store) Find(ctx context.Context, id string) (*Credential, error) {
	if id == "" {
		return nil, errors.WrapInvalid(nil, "credstore", "Find", "credential ID cannot be empty")
	}

	if cred, ok := s.cache.Get(id); ok {
		return cred, nil
	}

	entry, err := s.kvStore.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrCredentialNotFound
		}
		return nil, errors.WrapTransient(err, "credstore", "Find", "get from KV")
	}

	var cred Credential
	if err := json.Unmarshal(entry.Value, &cred); err != nil {
		return nil, errors.WrapFatal(err, "credstore", "Find", "unmarshal credential")
	}

	_, _ = s.cache.Set(id, &cred)
	return &cred, nil
}

// Put creates or replaces a credential
func (s *Store) Put(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.ID == "" {
		return errors.WrapInvalid(nil, "credstore", "Put", "credential with ID is required")
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return errors.WrapFatal(err, "credstore", "Put", "marshal credential")
	}
	if _, err := s.kvStore.Put(ctx, cred.ID, data); err != nil {
		return errors.WrapTransient(err, "credstore", "Put", "put to KV")
	}

	_, _ = s.cache.Delete(cred.ID)
	return nil
}

// Delete removes a credential
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(nil, "credstore", "Delete", "credential ID cannot be empty")
	}
	if err := s.kvStore.Delete(ctx, id); err != nil {
		return errors.WrapTransient(err, "credstore", "Delete", "delete from KV")
	}
	_, _ = s.cache.Delete(id)
	return nil
}

// Close releases the cache's background resources
func (s *Store) Close() error {
	return s.cache.Close()
}
