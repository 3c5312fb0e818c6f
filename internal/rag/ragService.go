package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/guardrails"
	"github.com/chatcfd/chatcfd-api/internal/metrics"
	"github.com/chatcfd/chatcfd-api/internal/prompt"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

// ErrNoUserMessage marks a conversation with no user turn to answer.
// Handlers map it to a 400.
var ErrNoUserMessage = errors.New("at least one user message is required")

// Service answers a mode-routed chat turn. Handlers only see this interface;
// the provider, store, and guardrails stay private to the implementation.
type Service interface {
	Chat(ctx context.Context, mode ragModel.Mode, input ChatInput) (ChatResult, error)
}

type ChatInput struct {
	Messages    []ragModel.ChatMessage
	Model       string
	Attachments []prompt.Attachment
}

type ChatResult struct {
	Response    string
	Sources     []ragModel.RetrievalResult
	Approximate bool
}

// RetrievalConfig carries the per-mode retrieval knobs.
type RetrievalConfig struct {
	GeneralTopK     int
	BenefitsTopK    int
	SimilarityFloor float64
}

type service struct {
	store    vectorDB.Store
	provider llm.Provider
	rewriter *guardrails.Rewriter
	cfg      RetrievalConfig
	logger   *logger_i.Logger
}

func NewService(store vectorDB.Store, provider llm.Provider, rewriter *guardrails.Rewriter, cfg RetrievalConfig) Service {
	return &service{
		store:    store,
		provider: provider,
		rewriter: rewriter,
		cfg:      cfg,
		logger:   logger_i.NewLogger("RAG Service :"),
	}
}

func (s *service) Chat(ctx context.Context, mode ragModel.Mode, input ChatInput) (ChatResult, error) {
	start := time.Now()
	defer func() { metrics.CaptureChatMetrics(mode.String(), time.Since(start)) }()

	switch mode {
	case ragModel.ModeGeneral:
		return s.generalChat(ctx, input)
	case ragModel.ModeBenefits:
		return s.benefitsChat(ctx, input)
	case ragModel.ModeBip:
		return ChatResult{}, errors.New("bip requests do not go through chat")
	}
	return ChatResult{}, fmt.Errorf("unhandled mode %d", mode)
}

func (s *service) generalChat(ctx context.Context, input ChatInput) (ChatResult, error) {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "mode", "general")

	idx, ok := lastUserIndex(input.Messages)
	if !ok {
		return ChatResult{}, ErrNoUserMessage
	}
	lastUser := input.Messages[idx]

	var sources []ragModel.RetrievalResult
	payload := make([]ragModel.ChatMessage, 0, len(input.Messages)+1)

	switch {
	case len(input.Attachments) > 0:
		// Uploaded documents outrank the indexed corpus.
		payload = append(payload, prompt.AttachmentSystem(input.Attachments))

	case len(prompt.MeaningfulTokens(lastUser.Content)) > 0:
		raw, err := s.executeRetrievalStep(ctx, log, ragModel.CorpusGeneral, lastUser.Content, s.cfg.GeneralTopK)
		if err != nil {
			return ChatResult{}, err
		}
		results := applySimilarityFloor(raw, s.cfg.SimilarityFloor)
		sources = results
		// Always injected: with zero results the system message carries the
		// limitation instruction instead of a citation block.
		payload = append(payload, prompt.GeneralSystem(results))

	default:
		// Nothing to retrieve on; answer with a clarification and skip the
		// model entirely.
		log.Info("Generic prompt, returning clarification")
		return ChatResult{Response: prompt.ClarificationFor(lastUser.Content), Sources: []ragModel.RetrievalResult{}}, nil
	}

	payload = append(payload, input.Messages...)

	answer, err := s.executeLLMStep(ctx, log, payload, input.Model)
	if err != nil {
		return ChatResult{}, err
	}

	guarded, approximate := s.executeGuardrailStep(ctx, answer)
	return ChatResult{Response: guarded, Sources: sources, Approximate: approximate}, nil
}

func (s *service) benefitsChat(ctx context.Context, input ChatInput) (ChatResult, error) {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "mode", "benefits")

	idx, ok := lastUserIndex(input.Messages)
	if !ok {
		return ChatResult{}, ErrNoUserMessage
	}
	lastUser := input.Messages[idx]

	results, err := s.executeRetrievalStep(ctx, log, ragModel.CorpusBenefits, lastUser.Content, s.cfg.BenefitsTopK)
	if err != nil {
		return ChatResult{}, err
	}

	payload := prompt.BenefitsMessages(input.Messages[:idx], lastUser.Content, results)

	answer, err := s.executeLLMStep(ctx, log, payload, input.Model)
	if err != nil {
		return ChatResult{}, err
	}

	guarded, approximate := s.executeGuardrailStep(ctx, answer)
	return ChatResult{Response: guarded, Sources: results, Approximate: approximate}, nil
}
