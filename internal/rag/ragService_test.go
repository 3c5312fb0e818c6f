package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/guardrails"
	"github.com/chatcfd/chatcfd-api/internal/prompt"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
)

type mockProvider struct {
	completeFunc func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error)
	embedFunc    func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockProvider) Complete(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
	return m.completeFunc(ctx, messages, model)
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedFunc(ctx, texts)
}

type mockStore struct {
	queryFunc func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error)
}

func (m *mockStore) Build(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error {
	return nil
}

func (m *mockStore) Add(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error {
	return nil
}

func (m *mockStore) Query(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
	return m.queryFunc(ctx, corpus, vector, topK)
}

func passthroughRewriter(t *testing.T, provider llm.Provider) *guardrails.Rewriter {
	t.Helper()
	s, err := guardrails.NewSanitizer(map[string]string{"crazy": "overwhelming"})
	if err != nil {
		t.Fatal(err)
	}
	return guardrails.NewRewriter(guardrails.RewriterOptions{
		Provider: provider, MinGrade: 0, MaxGrade: 100, MaxPasses: 3, Sanitizer: s,
	})
}

func testConfig() RetrievalConfig {
	return RetrievalConfig{GeneralTopK: 3, BenefitsTopK: 3, SimilarityFloor: 0.55}
}

func userMessage(content string) []ragModel.ChatMessage {
	return []ragModel.ChatMessage{{Role: ragModel.RoleUser, Content: content}}
}

func TestChat_GeneralInjectsCitations(t *testing.T) {
	var gotPayload []ragModel.ChatMessage
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			gotPayload = messages
			return "Overtime requires manager approval [1].", nil
		},
	}
	store := &mockStore{
		queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
			if corpus != ragModel.CorpusGeneral {
				t.Errorf("queried corpus %q", corpus)
			}
			return []ragModel.RetrievalResult{
				{File: "handbook.pdf", Snippet: "Overtime requires manager approval.", Score: 0.82},
			}, nil
		},
	}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	result, err := svc.Chat(context.Background(), ragModel.ModeGeneral, ChatInput{
		Messages: userMessage("What is the overtime policy?"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if len(gotPayload) < 2 || gotPayload[0].Role != ragModel.RoleSystem {
		t.Fatalf("system message not injected, payload: %+v", gotPayload)
	}
	if !strings.Contains(gotPayload[0].Content, "[1] handbook.pdf") {
		t.Errorf("citation block missing:\n%s", gotPayload[0].Content)
	}
	if len(result.Sources) != 1 || result.Sources[0].File != "handbook.pdf" {
		t.Errorf("sources = %+v", result.Sources)
	}
	if result.Approximate {
		t.Error("unexpectedly flagged approximate")
	}
}

func TestChat_GeneralGenericPromptSkipsModel(t *testing.T) {
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Error("embed called for generic prompt")
			return nil, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			t.Error("complete called for generic prompt")
			return "", nil
		},
	}
	store := &mockStore{queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
		t.Error("store queried for generic prompt")
		return nil, nil
	}}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	result, err := svc.Chat(context.Background(), ragModel.ModeGeneral, ChatInput{
		Messages: userMessage("summarize this"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !strings.Contains(result.Response, "Upload the file") {
		t.Errorf("expected clarification, got %q", result.Response)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %+v", result.Sources)
	}
}

func TestChat_GeneralFloorFallbackKeepsTopTwo(t *testing.T) {
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			return "answer", nil
		},
	}
	store := &mockStore{
		queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
			return []ragModel.RetrievalResult{
				{File: "a.pdf", Score: 0.40},
				{File: "b.pdf", Score: 0.35},
				{File: "c.pdf", Score: 0.30},
			}, nil
		},
	}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	result, err := svc.Chat(context.Background(), ragModel.ModeGeneral, ChatInput{
		Messages: userMessage("What is the visitor policy?"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("fallback should keep top two, got %d", len(result.Sources))
	}
	if result.Sources[0].File != "a.pdf" || result.Sources[1].File != "b.pdf" {
		t.Errorf("wrong fallback sources: %+v", result.Sources)
	}
}

func TestChat_GeneralEmptyIndexStatesLimitation(t *testing.T) {
	var gotPayload []ragModel.ChatMessage
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			gotPayload = messages
			return "General guidance.", nil
		},
	}
	store := &mockStore{queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
		return nil, nil
	}}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	result, err := svc.Chat(context.Background(), ragModel.ModeGeneral, ChatInput{
		Messages: userMessage("What is the visitor policy?"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %+v", result.Sources)
	}
	if len(gotPayload) < 2 || gotPayload[0].Role != ragModel.RoleSystem {
		t.Fatalf("system message not injected on empty retrieval, payload: %+v", gotPayload)
	}
	if !strings.Contains(gotPayload[0].Content, "No internal references were retrieved") {
		t.Errorf("limitation instruction missing:\n%s", gotPayload[0].Content)
	}
	if strings.Contains(gotPayload[0].Content, "[1]") {
		t.Errorf("citation entries present despite empty retrieval:\n%s", gotPayload[0].Content)
	}
}

func TestChat_GeneralAttachmentsOutrankIndex(t *testing.T) {
	var gotPayload []ragModel.ChatMessage
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Error("embed called despite attachments")
			return nil, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			gotPayload = messages
			return "Summary of the IEP.", nil
		},
	}
	store := &mockStore{queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
		t.Error("store queried despite attachments")
		return nil, nil
	}}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	_, err := svc.Chat(context.Background(), ragModel.ModeGeneral, ChatInput{
		Messages:    userMessage("Summarize the attached IEP document"),
		Attachments: []prompt.Attachment{{Name: "iep.pdf", Content: "Annual goals."}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !strings.Contains(gotPayload[0].Content, "[Attachment: iep.pdf]") {
		t.Errorf("attachment block missing:\n%s", gotPayload[0].Content)
	}
}

func TestChat_BenefitsEmptyRetrievalUsesPlaceholder(t *testing.T) {
	var gotPayload []ragModel.ChatMessage
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			gotPayload = messages
			return "I couldn't find that in the documentation.", nil
		},
	}
	store := &mockStore{queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
		if corpus != ragModel.CorpusBenefits {
			t.Errorf("queried corpus %q", corpus)
		}
		return nil, nil
	}}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	result, err := svc.Chat(context.Background(), ragModel.ModeBenefits, ChatInput{
		Messages: userMessage("What dental plans are offered?"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !strings.Contains(gotPayload[1].Content, "[No relevant context retrieved]") {
		t.Errorf("placeholder missing:\n%s", gotPayload[1].Content)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %+v", result.Sources)
	}
}

func TestChat_NoUserMessage(t *testing.T) {
	provider := &mockProvider{}
	store := &mockStore{}
	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())

	_, err := svc.Chat(context.Background(), ragModel.ModeGeneral, ChatInput{
		Messages: []ragModel.ChatMessage{{Role: ragModel.RoleAssistant, Content: "hello"}},
	})
	if !errors.Is(err, ErrNoUserMessage) {
		t.Errorf("expected ErrNoUserMessage, got %v", err)
	}
}

func TestChat_ProviderFailurePropagates(t *testing.T) {
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, llm.ErrUpstreamUnavailable
		},
	}
	store := &mockStore{}
	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())

	_, err := svc.Chat(context.Background(), ragModel.ModeBenefits, ChatInput{
		Messages: userMessage("What dental plans are offered?"),
	})
	if !errors.Is(err, llm.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestChat_ResponseSanitized(t *testing.T) {
	provider := &mockProvider{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		completeFunc: func(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error) {
			return "That schedule sounds crazy.", nil
		},
	}
	store := &mockStore{queryFunc: func(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
		return nil, nil
	}}

	svc := NewService(store, provider, passthroughRewriter(t, provider), testConfig())
	result, err := svc.Chat(context.Background(), ragModel.ModeBenefits, ChatInput{
		Messages: userMessage("Tell me about the holiday schedule policy"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if strings.Contains(strings.ToLower(result.Response), "crazy") {
		t.Errorf("denylisted term in response: %q", result.Response)
	}
}
