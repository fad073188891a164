package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
)

func TestWebhookDeliverPost(t *testing.T) {
	var gotMethod, gotContentType, gotCustom string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Source")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{Headers: map[string]string{"X-Source": "freshsaver"}})

	err := client.Deliver(context.Background(), server.URL, "", []byte(`{"item":"milk"}`))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod, "empty method defaults to POST")
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "freshsaver", gotCustom)
	assert.JSONEq(t, `{"item":"milk"}`, string(gotBody))
}

func TestWebhookDeliverGetOmitsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{})
	require.NoError(t, client.Deliver(context.Background(), server.URL, "get", []byte(`ignored`)))
}

func TestWebhookDeliverRejectsBadInput(t *testing.T) {
	client := NewWebhookClient(WebhookConfig{})

	err := client.Deliver(context.Background(), "", "POST", nil)
	assert.True(t, errors.IsInvalid(err), "missing URL is invalid, not transient")

	err = client.Deliver(context.Background(), "::not-a-url", "POST", nil)
	assert.True(t, errors.IsInvalid(err))

	err = client.Deliver(context.Background(), "http://example.com", "TRACE", nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestWebhookDeliverRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{})
	require.NoError(t, client.Deliver(context.Background(), server.URL, "POST", nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookDeliverClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{})
	err := client.Deliver(context.Background(), server.URL, "POST", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
