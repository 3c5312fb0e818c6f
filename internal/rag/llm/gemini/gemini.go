// Package gemini is the hosted inference backend for Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

type client struct {
	genAi      *genai.Client
	chatModel  string
	embedModel string
	policy     llm.RetryPolicy
}

var logger *logger_i.Logger
var geminiClient *client
var once sync.Once
var dimension int32 = config.EmbeddingOutputDimensionality

type Options struct {
	APIKey     string
	ChatModel  string
	EmbedModel string
	Policy     llm.RetryPolicy
}

// GetGeminiClient builds the process-wide client on first call. Returns nil
// when client construction failed.
func GetGeminiClient(ctx context.Context, opts Options) llm.Provider {
	once.Do(func() {
		logger = logger_i.NewLogger("llm_gemini")
		newGeminiClient(ctx, opts)
	})

	if geminiClient == nil {
		return nil
	}
	return geminiClient
}

func newGeminiClient(ctx context.Context, opts Options) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey})
	if err != nil {
		logger.Error("Error creating Gemini client:", "error", err)
		return
	}
	geminiClient = &client{
		genAi:      c,
		chatModel:  opts.ChatModel,
		embedModel: opts.EmbedModel,
		policy:     opts.Policy,
	}
	logger.Info("Gemini client created")
	go closeClient(ctx, geminiClient)
}

func closeClient(ctx context.Context, c *client) {
	<-ctx.Done()
	logger.Info("Closing Gemini client")
	c.genAi = nil
}

func (c *client) Complete(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
	if model == "" {
		model = c.chatModel
	}

	contentConfig := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case ragModel.RoleSystem:
			contentConfig.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case ragModel.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	var answer string
	err := c.policy.Do(ctx, logger, "gemini chat", func(ctx context.Context) error {
		result, err := c.genAi.Models.GenerateContent(ctx, model, contents, contentConfig)
		if err != nil {
			if isRateLimited(err) {
				logger.Error("Rate limit hit!", "error", err)
			}
			return err
		}
		answer = result.Text()
		if answer == "" {
			return errors.New("model returned empty response")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
		})
	}

	var vectors [][]float32
	err := c.policy.Do(ctx, logger, "gemini embedding", func(ctx context.Context) error {
		result, err := c.genAi.Models.EmbedContent(ctx, c.embedModel, contents,
			&genai.EmbedContentConfig{OutputDimensionality: &dimension, TaskType: "RETRIEVAL_DOCUMENT"})
		if err != nil {
			if isRateLimited(err) {
				logger.Error("Rate limit hit!", "error", err)
			}
			return err
		}
		if len(result.Embeddings) != len(texts) {
			return errors.New("embedding count does not match input count")
		}
		vectors = make([][]float32, 0, len(result.Embeddings))
		for _, e := range result.Embeddings {
			vectors = append(vectors, e.Values)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func isRateLimited(err error) bool {
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.ResourceExhausted
	}
	return false
}
