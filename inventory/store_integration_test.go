//go:build integration

package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

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
	return store
}

func TestStoreItemRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	exp := time.Now().Add(48 * time.Hour)
	item := &Item{
		ID:             "item-1",
		UserID:         "user-1",
		Name:           "Milk",
		Category:       "dairy",
		Location:       "fridge",
		Status:         "active",
		Quantity:       1,
		ExpirationDate: &exp,
	}
	require.NoError(t, store.Put(ctx, item))
	assert.False(t, item.CreatedAt.IsZero())

	got, err := store.Find(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Milk", got.Name)
	assert.Equal(t, "dairy", got.Category)
	require.NotNil(t, got.ExpirationDate)
	assert.WithinDuration(t, exp, *got.ExpirationDate, time.Second)

	_, err = store.Find(ctx, "ghost")
	assert.ErrorIs(t, err, errors.ErrItemNotFound)
}

func TestStoreListAll(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	for _, id := range []string{"item-1", "item-2", "item-3"} {
		require.NoError(t, store.Put(ctx, &Item{ID: id, Name: id, Status: "active"}))
	}

	items, err = store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestStoreUpdateStatus(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Item{ID: "item-1", Name: "Milk", Status: "active"}))

	require.NoError(t, store.UpdateStatus(ctx, "item-1", "consumed"))

	got, err := store.Find(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "consumed", got.Status)
	assert.Equal(t, "Milk", got.Name, "other fields untouched")

	err = store.UpdateStatus(ctx, "ghost", "consumed")
	assert.ErrorIs(t, err, errors.ErrItemNotFound)
}

// Concurrent status writers must all land; the CAS loop retries on conflict
// rather than losing an update.
func TestStoreUpdateStatusConcurrent(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Item{ID: "item-1", Name: "Milk", Status: "active"}))

	statuses := []string{"expiring_soon", "consumed", "discarded", "active", "expiring_soon"}
	var wg sync.WaitGroup
	for _, status := range statuses {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			assert.NoError(t, store.UpdateStatus(ctx, "item-1", s))
		}(status)
	}
	wg.Wait()

	got, err := store.Find(ctx, "item-1")
	require.NoError(t, err)
	assert.Contains(t, statuses, got.Status)
}
