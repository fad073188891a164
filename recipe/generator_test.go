package recipe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
)

// completionStub answers the OpenAI chat completions endpoint with content.
func completionStub(t *testing.T, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if capture != nil {
			_ = json.NewDecoder(r.Body).Decode(capture)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGenerateReturnsSuggestions(t *testing.T) {
	var req map[string]any
	server := completionStub(t, "1. Milk pancakes\n2. Bechamel", &req)

	g := NewGenerator(Config{BaseURL: server.URL, Model: "test-model"})
	out, err := g.Generate(context.Background(), "sk-test", Request{ItemName: "milk", Category: "dairy"})
	require.NoError(t, err)
	assert.Contains(t, out, "pancakes")
	assert.Equal(t, "test-model", req["model"])

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Contains(t, user["content"], "milk")
	assert.Contains(t, user["content"], "dairy")
}

func TestGenerateCustomPromptSubstitution(t *testing.T) {
	var req map[string]any
	server := completionStub(t, "ok", &req)

	g := NewGenerator(Config{BaseURL: server.URL})
	_, err := g.Generate(context.Background(), "sk-test", Request{
		ItemName: "spinach",
		Category: "produce",
		Prompt:   "Quick dinners with {{item}} from the {{category}} drawer",
	})
	require.NoError(t, err)

	messages := req["messages"].([]any)
	user := messages[1].(map[string]any)
	assert.Equal(t, "Quick dinners with spinach from the produce drawer", user["content"])
}

func TestGenerateRequiresInput(t *testing.T) {
	g := NewGenerator(Config{})

	_, err := g.Generate(context.Background(), "sk-test", Request{})
	assert.True(t, errors.IsInvalid(err))

	_, err = g.Generate(context.Background(), "", Request{ItemName: "milk"})
	assert.True(t, errors.IsInvalid(err))
}

func TestGenerateServiceErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	g := NewGenerator(Config{BaseURL: server.URL})
	_, err := g.Generate(context.Background(), "sk-test", Request{ItemName: "milk"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestGenerateEmptyContentIsError(t *testing.T) {
	server := completionStub(t, "   ", nil)

	g := NewGenerator(Config{BaseURL: server.URL})
	_, err := g.Generate(context.Background(), "sk-test", Request{ItemName: "milk"})
	assert.True(t, errors.IsTransient(err))
}
