//go:build integration

package credstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/natsclient"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	tc := natsclient.NewTestClient(t)
	store, err := NewStore(context.Background(), tc.Client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreCredentialRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	cred := &Credential{
		ID:     "cred-openai",
		Name:   "OpenAI production key",
		Type:   "api_key",
		Secret: "sk-secret",
	}
	require.NoError(t, store.Put(ctx, cred))

	got, err := store.Find(ctx, "cred-openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", got.Secret)
	assert.Equal(t, "OpenAI production key", got.Name)

	// Second read comes from cache; same result
	again, err := store.Find(ctx, "cred-openai")
	require.NoError(t, err)
	assert.Equal(t, got.Secret, again.Secret)

	_, err = store.Find(ctx, "ghost")
	assert.ErrorIs(t, err, errors.ErrCredentialNotFound)
}

func TestStorePutInvalidatesCache(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Credential{ID: "cred-1", Name: "v1", Type: "api_key", Secret: "old"}))

	// Warm the cache
	_, err := store.Find(ctx, "cred-1")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, &Credential{ID: "cred-1", Name: "v2", Type: "api_key", Secret: "new"}))

	got, err := store.Find(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Secret, "rotation is visible immediately")
}

func TestStoreDelete(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Credential{ID: "cred-1", Name: "n", Type: "api_key", Secret: "s"}))
	_, err := store.Find(ctx, "cred-1")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "cred-1"))

	_, err = store.Find(ctx, "cred-1")
	assert.ErrorIs(t, err, errors.ErrCredentialNotFound)
}
