// Package openaiLLM is the hosted inference backend for OpenAI-compatible
// APIs.
package openaiLLM

import (
	"context"
	"errors"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

type client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	policy     llm.RetryPolicy
}

var logger *logger_i.Logger
var openaiClient *client
var once sync.Once

type Options struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Policy     llm.RetryPolicy
}

// GetOpenAIClient builds the process-wide client on first call. Returns nil
// when no API key is configured.
func GetOpenAIClient(opts Options) llm.Provider {
	once.Do(func() {
		logger = logger_i.NewLogger("llm_openai")
		newClient(opts)
	})

	if openaiClient == nil {
		return nil
	}
	return openaiClient
}

func newClient(opts Options) {
	if opts.APIKey == "" {
		logger.Error("No API key set for OpenAI client")
		return
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	openaiClient = &client{
		api:        openai.NewClient(reqOpts...),
		chatModel:  opts.ChatModel,
		embedModel: opts.EmbedModel,
		policy:     opts.Policy,
	}
	logger.Info("OpenAI client created")
}

func (c *client) Complete(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
	if model == "" {
		model = c.chatModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toUnionMessages(messages),
	}

	var answer string
	err := c.policy.Do(ctx, logger, "openai chat", func(ctx context.Context) error {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion returned no choices")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}

	var vectors [][]float32
	err := c.policy.Do(ctx, logger, "openai embedding", func(ctx context.Context) error {
		resp, err := c.api.Embeddings.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return errors.New("embedding count does not match input count")
		}
		vectors = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, v := range d.Embedding {
				vec[j] = float32(v)
			}
			vectors[i] = vec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func toUnionMessages(messages []ragModel.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ragModel.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case ragModel.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
