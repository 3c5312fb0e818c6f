// @title           ChaTCFD API
// @version         1.0
// @description     Retrieval-augmented assistant for policy questions, benefits questions, and behavior intervention plan drafting.

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8000
// @BasePath  /
// @schemes   http https
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatcfd/chatcfd-api/internal/bip"
	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/guardrails"
	"github.com/chatcfd/chatcfd-api/internal/handlers"
	"github.com/chatcfd/chatcfd-api/internal/rag"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm/gemini"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm/ollama"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm/openaiLLM"
	"github.com/chatcfd/chatcfd-api/internal/rag/loader"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB/memoryDB"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB/qdrantDB"
	"github.com/chatcfd/chatcfd-api/internal/server"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

var listenAddr string

func main() {
	cfg := config.Load()

	logger_i.Init(cfg.IsProd, cfg.LogLevel)
	var logger = logger_i.NewLogger("main")

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		return
	}

	flag.StringVar(&listenAddr, "listen-addr", cfg.ListenAddr, "server listen address")
	flag.Parse()

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	provider := buildProvider(serviceContext, cfg)
	store := buildStore(serviceContext, cfg)

	if provider == nil || store == nil {
		logger.Error("One or more external services failed to initialize. Shutting down.")
		logger.Debug("Available services : ", "Provider", provider != nil, "VectorStore", store != nil)
		return
	}

	sanitizer, err := guardrails.NewSanitizer(cfg.Denylist)
	if err != nil {
		logger.Error("Invalid denylist", "error", err)
		return
	}
	rewriter := guardrails.NewRewriter(guardrails.RewriterOptions{
		Provider:  provider,
		Model:     cfg.RewriteModel,
		MinGrade:  cfg.ReadabilityMin,
		MaxGrade:  cfg.ReadabilityMax,
		MaxPasses: cfg.RewriteMaxPasses,
		Sanitizer: sanitizer,
	})

	ragService := rag.NewService(store, provider, rewriter, rag.RetrievalConfig{
		GeneralTopK:     cfg.GeneralTopK,
		BenefitsTopK:    cfg.BenefitsTopK,
		SimilarityFloor: cfg.SimilarityFloor,
	})
	bipService := bip.NewService(store, provider, rewriter, cfg.BipTopK)

	handlers.InitHandlers(ragService, bipService, loader.New())

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		CloseServices:    closeExternalServices,
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(listenAddr)

	<-stopExecution
	logger.Info("Server stopped")
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
