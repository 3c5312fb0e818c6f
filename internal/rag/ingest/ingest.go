// Package ingest runs the corpus build pipeline: extract, chunk, embed,
// index. Each corpus rebuild is all-or-nothing; query traffic keeps hitting
// the previous index until the new one is published.
package ingest

import (
	"context"
	"fmt"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/metrics"
	"github.com/chatcfd/chatcfd-api/internal/rag/chunker"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/internal/rag/loader"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

const embedBatchSize = 100

// Summary reports what one corpus rebuild did, including per-file skips.
type Summary struct {
	Corpus    ragModel.Corpus
	Documents int
	Chunks    int
	Skips     []loader.Skip
}

type Pipeline struct {
	loader   *loader.Loader
	chunker  *chunker.Chunker
	provider llm.Provider
	store    vectorDB.Store
	logger   *logger_i.Logger
}

func NewPipeline(l *loader.Loader, c *chunker.Chunker, provider llm.Provider, store vectorDB.Store) *Pipeline {
	return &Pipeline{
		loader:   l,
		chunker:  c,
		provider: provider,
		store:    store,
		logger:   logger_i.NewLogger("Ingest Pipeline"),
	}
}

// Run rebuilds one corpus from the documents under dir.
func (p *Pipeline) Run(ctx context.Context, corpus ragModel.Corpus, dir string) (Summary, error) {
	summary := Summary{Corpus: corpus}

	docs, skips, err := p.loader.LoadDir(dir, corpus)
	if err != nil {
		return summary, err
	}
	summary.Documents = len(docs)
	summary.Skips = skips

	var chunks []ragModel.Chunk
	for _, doc := range docs {
		chunks = append(chunks, p.chunker.Split(doc)...)
	}
	summary.Chunks = len(chunks)

	if err := p.embedAll(ctx, chunks); err != nil {
		return summary, err
	}

	if err := p.store.Build(ctx, corpus, chunks); err != nil {
		return summary, err
	}

	metrics.CountIngestedChunks(string(corpus), len(chunks))
	p.logger.Info("Corpus rebuilt", "corpus", corpus, "documents", summary.Documents, "chunks", summary.Chunks, "skipped", len(skips))
	return summary, nil
}

// AddDocument indexes a single file into an existing corpus without a full
// rebuild.
func (p *Pipeline) AddDocument(ctx context.Context, corpus ragModel.Corpus, path string) (int, error) {
	doc, err := p.loader.Load(path, corpus)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Split(doc)
	if err := p.embedAll(ctx, chunks); err != nil {
		return 0, err
	}
	if err := p.store.Add(ctx, corpus, chunks); err != nil {
		return 0, err
	}

	metrics.CountIngestedChunks(string(corpus), len(chunks))
	return len(chunks), nil
}

// embedAll fills in chunk vectors, batching so one oversized corpus does not
// turn into one oversized provider call.
func (p *Pipeline) embedAll(ctx context.Context, chunks []ragModel.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := p.provider.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch starting at chunk %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding batch returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i := range batch {
			chunks[start+i].Vector = vectors[i]
		}
	}
	return nil
}
