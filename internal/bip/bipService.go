// Package bip drafts Behavior Intervention Plans. The draft is grounded in
// two corpora: prior approved plans as few-shot examples and the clinical
// policy documents that constrain them.
package bip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/guardrails"
	"github.com/chatcfd/chatcfd-api/internal/metrics"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

// ErrInvalidRequest marks a request rejected before any model call.
var ErrInvalidRequest = errors.New("invalid bip request")

// Request is the structured intake for a plan. FbaText is the extracted
// content of an optional uploaded Functional Behavior Assessment.
type Request struct {
	Name      string
	Age       int
	Diagnosis string
	Behavior  string
	Setting   string
	Trigger   string
	Notes     string
	FbaText   string
	Model     string
}

// Validate fails fast so a bad form never spends a model call.
func (r Request) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", r.Name},
		{"diagnosis", r.Diagnosis},
		{"behavior", r.Behavior},
		{"setting", r.Setting},
		{"trigger", r.Trigger},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing fields: %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.Age <= 0 || r.Age > 130 {
		return fmt.Errorf("%w: age must be a positive number", ErrInvalidRequest)
	}
	return nil
}

type Result struct {
	Bip         string
	Sources     []ragModel.RetrievalResult
	Approximate bool
}

type Service struct {
	store    vectorDB.Store
	provider llm.Provider
	rewriter *guardrails.Rewriter
	topK     int
	logger   *logger_i.Logger
}

func NewService(store vectorDB.Store, provider llm.Provider, rewriter *guardrails.Rewriter, topK int) *Service {
	return &Service{
		store:    store,
		provider: provider,
		rewriter: rewriter,
		topK:     topK,
		logger:   logger_i.NewLogger("BIP Service"),
	}
}

// Generate validates, retrieves grounding material, drafts the plan, and
// post-processes it. Empty corpora are not an error; the draft just carries
// no sources.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	defer func() { metrics.CaptureChatMetrics("bip", time.Since(start)) }()

	profile := req.profile()

	examples, policies, err := s.retrieveContext(ctx, log, profile)
	if err != nil {
		return Result{}, err
	}

	promptText := buildPrompt(req, profile, examples, policies)

	answer, err := s.provider.Complete(ctx, []ragModel.ChatMessage{
		{Role: ragModel.RoleUser, Content: promptText},
	}, req.Model)
	if err != nil {
		return Result{}, err
	}

	guarded, approximate := s.rewriter.Process(ctx, answer)

	sources := make([]ragModel.RetrievalResult, 0, len(examples)+len(policies))
	sources = append(sources, examples...)
	sources = append(sources, policies...)

	return Result{Bip: guarded, Sources: sources, Approximate: approximate}, nil
}

func (s *Service) retrieveContext(ctx context.Context, log *logger_i.Logger, profile string) (examples, policies []ragModel.RetrievalResult, err error) {
	vectors, err := s.provider.Embed(ctx, []string{profile})
	if err != nil {
		return nil, nil, err
	}
	if len(vectors) != 1 {
		return nil, nil, errors.New("embedding returned wrong vector count")
	}

	examples, err = s.store.Query(ctx, ragModel.CorpusBipExamples, vectors[0], s.topK)
	if err != nil {
		return nil, nil, err
	}
	policies, err = s.store.Query(ctx, ragModel.CorpusBipPolicies, vectors[0], s.topK)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("BIP retrieval complete", "examples", len(examples), "policies", len(policies))
	return examples, policies, nil
}

func (r Request) profile() string {
	var b strings.Builder
	b.WriteString("Student Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n", r.Name)
	fmt.Fprintf(&b, "- Age: %d\n", r.Age)
	fmt.Fprintf(&b, "- Diagnosis: %s\n", r.Diagnosis)
	fmt.Fprintf(&b, "- Behavior: %s\n", r.Behavior)
	fmt.Fprintf(&b, "- Setting: %s\n", r.Setting)
	fmt.Fprintf(&b, "- Trigger: %s\n", r.Trigger)
	if r.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", r.Notes)
	}
	if r.FbaText != "" {
		fmt.Fprintf(&b, "\nFunctional Behavior Assessment Summary:\n%s\n", strings.TrimSpace(r.FbaText))
	}
	return b.String()
}

func buildPrompt(req Request, profile string, examples, policies []ragModel.RetrievalResult) string {
	var b strings.Builder

	b.WriteString("You are a certified behavior analyst creating a Behavior Intervention Plan (BIP) " +
		"for The Center for Discovery. Use people-first, observable, measurable language. " +
		"Ensure replacement behaviors are functionally equivalent to the target behavior.")

	b.WriteString("\n\nFollow these guidelines when writing the plan:" +
		"\n- Adhere to New York State OPWDD and The Center for Discovery standards." +
		"\n- Avoid mentalistic explanations (e.g., 'the student wants attention')." +
		"\n- Provide goals that are measurable with clear criteria." +
		"\n- Include safety precautions when relevant.")

	if block := contextBlock(examples); block != "" {
		b.WriteString("\n\n[REFERENCE EXAMPLES]\n" + block)
	}
	if block := contextBlock(policies); block != "" {
		b.WriteString("\n\n[POLICY CONTEXT]\n" + block)
	}

	b.WriteString("\n\n[NEW REQUEST]\n" + profile + "\n" +
		"\nPlease produce a complete BIP that includes:\n" +
		"- FBA Summary\n" +
		"- Operational Definition\n" +
		"- Replacement Behaviors\n" +
		"- Prevention Strategies\n" +
		"- Reinforcement Plan\n" +
		"- Data Collection Method\n" +
		"- Crisis/Safety Plan if applicable\n" +
		"- Three short-term goals and one long-term goal with measurable criteria\n")

	return b.String()
}

func contextBlock(results []ragModel.RetrievalResult) string {
	var parts []string
	for _, r := range results {
		if s := strings.TrimSpace(r.Snippet); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n---\n")
}
