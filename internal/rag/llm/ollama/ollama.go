// Package ollama is the local inference backend. It speaks the Ollama HTTP
// API directly: /api/chat for completions, /api/embeddings per text.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	policy     llm.RetryPolicy
	logger     *logger_i.Logger
}

type Options struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Policy     llm.RetryPolicy
}

func New(opts Options) *Client {
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		chatModel:  opts.ChatModel,
		embedModel: opts.EmbedModel,
		// Per-attempt deadlines come from the retry policy's context.
		httpClient: &http.Client{},
		policy:     opts.Policy,
		logger:     logger_i.NewLogger("llm_ollama"),
	}
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []ragModel.ChatMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
}

type chatResponse struct {
	Message ragModel.ChatMessage `json:"message"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *Client) Complete(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
	if model == "" {
		model = c.chatModel
	}

	var answer string
	err := c.policy.Do(ctx, c.logger, "ollama chat", func(ctx context.Context) error {
		var resp chatResponse
		if err := c.post(ctx, "/api/chat", chatRequest{Model: model, Messages: messages, Stream: false}, &resp); err != nil {
			return err
		}
		answer = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var vec []float32
		err := c.policy.Do(ctx, c.logger, "ollama embedding", func(ctx context.Context) error {
			var resp embedResponse
			if err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.embedModel, Prompt: text}, &resp); err != nil {
				return err
			}
			vec = resp.Embedding
			return nil
		})
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
