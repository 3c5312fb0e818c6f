package vectorDB

import (
	"context"
	"errors"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
)

// ErrRebuildInProgress is returned when a second rebuild targets a corpus
// that is already being rebuilt. One writer per corpus at a time.
var ErrRebuildInProgress = errors.New("corpus rebuild already in progress")

// Store is the retrieval backend. Build replaces a corpus index atomically;
// readers never observe a partially built index. Query against a corpus
// that was never built returns no results, not an error.
type Store interface {
	Build(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error
	Add(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error
	Query(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error)
}
