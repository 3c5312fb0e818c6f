package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/chunker"
	"github.com/chatcfd/chatcfd-api/internal/rag/ingest"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm/gemini"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm/ollama"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm/openaiLLM"
	"github.com/chatcfd/chatcfd-api/internal/rag/loader"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB/memoryDB"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB/qdrantDB"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

var (
	corpusFlag string
	docsFlag   string
)

func main() {
	cfg := config.Load()

	logger_i.Init(cfg.IsProd, cfg.LogLevel)
	var logger = logger_i.NewLogger("ingest")

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	flag.StringVar(&corpusFlag, "corpus", "all", "corpus to rebuild (general, benefits, bip_examples, bip_policies or all)")
	flag.StringVar(&docsFlag, "docs", cfg.DocsDir, "root directory with one subdirectory per corpus")
	flag.Parse()

	corpora, err := resolveCorpora(corpusFlag)
	if err != nil {
		logger.Error("Bad corpus flag", "error", err)
		os.Exit(1)
	}

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	provider := buildProvider(serviceContext, cfg)
	store := buildStore(serviceContext, cfg)
	if provider == nil || store == nil {
		logger.Error("One or more external services failed to initialize. Shutting down.")
		logger.Debug("Available services : ", "Provider", provider != nil, "VectorStore", store != nil)
		os.Exit(1)
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		logger.Error("Bad chunking configuration", "error", err)
		os.Exit(1)
	}

	pipeline := ingest.NewPipeline(loader.New(), splitter, provider, store)

	failed := false
	for _, corpus := range corpora {
		dir := filepath.Join(docsFlag, string(corpus))
		summary, err := pipeline.Run(serviceContext, corpus, dir)
		if err != nil {
			failed = true
			if errors.Is(err, vectorDB.ErrRebuildInProgress) {
				fmt.Printf("corpus %s: a rebuild is already running, try again later\n", corpus)
				continue
			}
			fmt.Printf("corpus %s: %v\n", corpus, err)
			continue
		}
		printSummary(summary)
	}
	if failed {
		os.Exit(1)
	}
}

func printSummary(s ingest.Summary) {
	fmt.Printf("corpus %s: %d documents, %d chunks indexed\n", s.Corpus, s.Documents, s.Chunks)
	for _, skip := range s.Skips {
		fmt.Printf("  skipped %s: %s\n", skip.Path, skip.Reason)
	}
}

func resolveCorpora(raw string) ([]ragModel.Corpus, error) {
	if raw == "all" {
		return ragModel.AllCorpora(), nil
	}
	corpus, err := ragModel.ParseCorpus(raw)
	if err != nil {
		return nil, err
	}
	return []ragModel.Corpus{corpus}, nil
}

func buildProvider(ctx context.Context, cfg config.Config) llm.Provider {
	policy := llm.RetryPolicy{
		Timeout:  cfg.RequestTimeout,
		Attempts: cfg.MaxRetries,
		Backoff:  cfg.RetryBackoff,
	}

	switch cfg.ProviderKind {
	case "ollama":
		return ollama.New(ollama.Options{
			BaseURL:    cfg.Endpoint,
			ChatModel:  cfg.ChatModel,
			EmbedModel: cfg.EmbedModel,
			Policy:     policy,
		})
	case "openai":
		return openaiLLM.GetOpenAIClient(openaiLLM.Options{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			ChatModel:  cfg.ChatModel,
			EmbedModel: cfg.EmbedModel,
			Policy:     policy,
		})
	case "gemini":
		return gemini.GetGeminiClient(ctx, gemini.Options{
			APIKey:     cfg.APIKey,
			ChatModel:  cfg.ChatModel,
			EmbedModel: cfg.EmbedModel,
			Policy:     policy,
		})
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) vectorDB.Store {
	switch cfg.VectorBackend {
	case "memory":
		return memoryDB.New(cfg.StoreDir)
	case "qdrant":
		db := qdrantDB.GetQdrantClient(ctx, cfg.QdrantHostAddr, cfg.QdrantPort)
		if db == nil {
			return nil
		}
		return db
	}
	return nil
}
