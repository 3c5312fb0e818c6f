package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	IS_PROD        = false
	LOG_LEVEL_PROD = slog.LevelInfo
	TRACE_ID_KEY   = "traceId"

	RATE_LIMIT_PER_SECOND       = 2
	BURST_RATE_LIMIT_PER_SECOND = 5

	//serverTimeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 150 * time.Second //must outlive a full rewrite loop
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//server listening port
	ServerListenAddr = ":8000"

	//providers
	DefaultProvider     = "ollama"
	DefaultOllamaURL    = "http://localhost:11434"
	DefaultChatModel    = "llama3.1"
	DefaultRewriteModel = "llama3.1"
	DefaultEmbedModel   = "nomic-embed-text"

	DefaultRequestTimeout = 120 * time.Second
	DefaultMaxRetries     = 2
	DefaultRetryBackoff   = 2 * time.Second

	//chunking
	DefaultChunkSize    = 1000 //characters
	DefaultChunkOverlap = 150  //generous overlap helps semantic continuity

	//retrieval
	DefaultGeneralTopK     = 3
	DefaultBenefitsTopK    = 3
	DefaultBipTopK         = 4
	DefaultSimilarityFloor = 0.55

	//readability band and rewrite loop
	DefaultReadabilityMin   = 6.0
	DefaultReadabilityMax   = 8.0
	DefaultRewriteMaxPasses = 3

	//vector index
	DefaultVectorBackend = "memory"
	DefaultStoreDir      = "storage"
	DefaultDocsDir       = "data"

	EmbeddingOutputDimensionality int32 = 768

	QdrantHost             = "localhost"
	QdrantGrpcPort         = 6334
	QdrantUseTLS           = false
	QdrantPoolSize         = 1
	QdrantKeepAliveTimeout = 30 * time.Second
)

// Config is read once at startup and handed to every constructor. Nothing
// rereads the environment after Load returns.
type Config struct {
	IsProd   bool
	LogLevel slog.Level

	ListenAddr string

	ProviderKind string //ollama, openai or gemini
	Endpoint     string
	APIKey       string
	ChatModel    string
	RewriteModel string
	EmbedModel   string

	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration

	ChunkSize    int
	ChunkOverlap int

	GeneralTopK     int
	BenefitsTopK    int
	BipTopK         int
	SimilarityFloor float64

	ReadabilityMin   float64
	ReadabilityMax   float64
	RewriteMaxPasses int

	// Denylist maps a disrespectful term to its approved replacement.
	Denylist map[string]string

	VectorBackend string //memory or qdrant
	StoreDir      string
	DocsDir       string

	QdrantHostAddr string
	QdrantPort     int
}

// DefaultDenylist enforces people-first phrasing. Replacements must never
// contain a denylisted term, otherwise the filter loses idempotence.
func DefaultDenylist() map[string]string {
	return map[string]string{
		"retarded":    "with an intellectual disability",
		"handicapped": "with a disability",
		"crazy":       "overwhelming",
	}
}

func Load() Config {
	cfg := Config{
		IsProd:           IS_PROD,
		LogLevel:         slog.LevelDebug,
		ListenAddr:       getEnv("LISTEN_ADDR", ServerListenAddr),
		ProviderKind:     strings.ToLower(getEnv("MODEL_PROVIDER", DefaultProvider)),
		Endpoint:         getEnv("PROVIDER_BASE_URL", DefaultOllamaURL),
		APIKey:           os.Getenv("PROVIDER_API_KEY"),
		ChatModel:        getEnv("DEFAULT_CHAT_MODEL", DefaultChatModel),
		RewriteModel:     getEnv("REWRITE_MODEL", DefaultRewriteModel),
		EmbedModel:       getEnv("EMBED_MODEL", DefaultEmbedModel),
		RequestTimeout:   getEnvDuration("MODEL_REQUEST_TIMEOUT", DefaultRequestTimeout),
		MaxRetries:       getEnvInt("MODEL_MAX_RETRIES", DefaultMaxRetries),
		RetryBackoff:     getEnvDuration("MODEL_RETRY_BACKOFF", DefaultRetryBackoff),
		ChunkSize:        getEnvInt("CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", DefaultChunkOverlap),
		GeneralTopK:      getEnvInt("GENERAL_TOP_K", DefaultGeneralTopK),
		BenefitsTopK:     getEnvInt("BENEFITS_TOP_K", DefaultBenefitsTopK),
		BipTopK:          getEnvInt("BIP_TOP_K", DefaultBipTopK),
		SimilarityFloor:  getEnvFloat("SIMILARITY_FLOOR", DefaultSimilarityFloor),
		ReadabilityMin:   getEnvFloat("READABILITY_MIN_GRADE", DefaultReadabilityMin),
		ReadabilityMax:   getEnvFloat("READABILITY_MAX_GRADE", DefaultReadabilityMax),
		RewriteMaxPasses: getEnvInt("REWRITE_MAX_PASSES", DefaultRewriteMaxPasses),
		Denylist:         parseDenylist(os.Getenv("DENYLIST")),
		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", DefaultVectorBackend)),
		StoreDir:         getEnv("VECTOR_STORE_DIR", DefaultStoreDir),
		DocsDir:          getEnv("DOCS_DIR", DefaultDocsDir),
		QdrantHostAddr:   getEnv("QDRANT_HOST", QdrantHost),
		QdrantPort:       getEnvInt("QDRANT_PORT", QdrantGrpcPort),
	}
	if cfg.IsProd {
		cfg.LogLevel = LOG_LEVEL_PROD
	}
	return cfg
}

// Validate rejects configurations the pipeline cannot run with. Called once
// at startup so bad values fail the process, not a request.
func (c Config) Validate() error {
	switch c.ProviderKind {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported model provider %q", c.ProviderKind)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.ReadabilityMin > c.ReadabilityMax {
		return fmt.Errorf("readability band [%v, %v] is inverted", c.ReadabilityMin, c.ReadabilityMax)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("retry budget cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// parseDenylist reads "term=replacement,term=replacement". Malformed pairs
// are dropped rather than failing startup.
func parseDenylist(raw string) map[string]string {
	if raw == "" {
		return DefaultDenylist()
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		term, replacement, ok := strings.Cut(pair, "=")
		term = strings.TrimSpace(strings.ToLower(term))
		replacement = strings.TrimSpace(replacement)
		if !ok || term == "" || replacement == "" {
			continue
		}
		out[term] = replacement
	}
	if len(out) == 0 {
		return DefaultDenylist()
	}
	return out
}
