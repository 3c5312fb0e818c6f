package rag

import (
	"context"
	"errors"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/metrics"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

func lastUserIndex(messages []ragModel.ChatMessage) (int, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ragModel.RoleUser {
			return i, true
		}
	}
	return 0, false
}

// applySimilarityFloor drops weak matches. If the floor eliminates every
// match but the raw set was non-empty, the two strongest come back anyway;
// a weak hint beats none.
func applySimilarityFloor(raw []ragModel.RetrievalResult, floor float64) []ragModel.RetrievalResult {
	var kept []ragModel.RetrievalResult
	for _, r := range raw {
		if r.Score >= floor {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 && len(raw) > 0 {
		if len(raw) > 2 {
			return raw[:2]
		}
		return raw
	}
	return kept
}

// executeRetrievalStep embeds the question and queries the corpus index.
func (s *service) executeRetrievalStep(ctx context.Context, log *logger_i.Logger, corpus ragModel.Corpus, question string, topK int) ([]ragModel.RetrievalResult, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("embedding", time.Since(start)) }()

	vectors, err := s.provider.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.New("embedding returned wrong vector count")
	}

	searchStart := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("vector_search", time.Since(searchStart)) }()

	results, err := s.store.Query(ctx, corpus, vectors[0], topK)
	if err != nil {
		log.Error("Vector search failed", "corpus", corpus, "error", err)
		return nil, err
	}
	log.Debug("Retrieval complete", "corpus", corpus, "matches", len(results))
	return results, nil
}

func (s *service) executeLLMStep(ctx context.Context, log *logger_i.Logger, messages []ragModel.ChatMessage, model string) (string, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("llm_generation", time.Since(start)) }()

	answer, err := s.provider.Complete(ctx, messages, model)
	if err != nil {
		log.Error("LLM generation failed", "error", err)
		return "", err
	}
	return answer, nil
}

func (s *service) executeGuardrailStep(ctx context.Context, answer string) (string, bool) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("guardrails", time.Since(start)) }()

	return s.rewriter.Process(ctx, answer)
}
