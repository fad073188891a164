// Package recipe generates recipe suggestions for expiring inventory items
// through an OpenAI-compatible chat completion API. Any provider exposing the
// standard completions endpoint works; the base URL and model are configured
// per deployment and the API key is resolved from the credential store at
// execution time.
package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
)

const defaultModel = "gpt-4o-mini"

// Config configures the recipe generator.
type Config struct {
	// BaseURL of the completion service. Empty means the OpenAI cloud
	// endpoint; self-hosted OpenAI-compatible services work too.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the chat model to use. Defaults to gpt-4o-mini.
	Model string `json:"model" yaml:"model"`

	// Timeout for the completion call in seconds (default 30).
	Timeout int `json:"timeout" yaml:"timeout"`
}

// Request describes what to generate a recipe for.
type Request struct {
	// ItemName is the expiring ingredient the suggestions should feature.
	ItemName string

	// Category gives the model extra context (dairy, produce, ...).
	Category string

	// Prompt overrides the default prompt template when set. {{item}} and
	// {{category}} markers in it are substituted before sending.
	Prompt string

	// MaxSuggestions bounds the number of recipes asked for (default 3).
	MaxSuggestions int
}

// Generator produces recipe suggestions from item context.
type Generator struct {
	baseURL string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates a recipe generator.
func NewGenerator(cfg Config) *Generator {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Generator{
		baseURL: cfg.BaseURL,
		model:   model,
		timeout: timeout,
		logger:  slog.Default().With("component", "recipe"),
	}
}

// Generate asks the completion service for recipe suggestions. The API key
// comes from the caller so credentials stay in the credential store rather
// than in process-wide config.
func (g *Generator) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	if req.ItemName == "" && req.Prompt == "" {
		return "", errors.WrapInvalid(nil, "recipe", "Generate", "item name or prompt is required")
	}
	if apiKey == "" {
		return "", errors.WrapInvalid(errors.ErrCredentialNotFound, "recipe", "Generate",
			"API key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if g.baseURL != "" {
		clientCfg.BaseURL = g.baseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: g.timeout}
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You suggest practical recipes that use up ingredients " +
					"before they expire. Answer with a short numbered list.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: g.buildPrompt(req),
			},
		},
	})
	if err != nil {
		return "", errors.WrapTransient(err, "recipe", "Generate", "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.WrapTransient(
			fmt.Errorf("completion returned no choices"), "recipe", "Generate", "chat completion")
	}

	suggestions := strings.TrimSpace(resp.Choices[0].Message.Content)
	if suggestions == "" {
		return "", errors.WrapTransient(
			fmt.Errorf("completion returned empty content"), "recipe", "Generate", "chat completion")
	}

	g.logger.Debug("generated recipe suggestions",
		"item", req.ItemName, "model", g.model, "length", len(suggestions))
	return suggestions, nil
}

func (g *Generator) buildPrompt(req Request) string {
	count := req.MaxSuggestions
	if count <= 0 {
		count = 3
	}

	if req.Prompt != "" {
		prompt := strings.ReplaceAll(req.Prompt, "{{item}}", req.ItemName)
		return strings.ReplaceAll(prompt, "{{category}}", req.Category)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d recipes that use %s", count, req.ItemName)
	if req.Category != "" {
		fmt.Fprintf(&b, " (%s)", req.Category)
	}
	b.WriteString(" as a main ingredient.")
	return b.String()
}
