// Package memoryDB is the default retrieval backend: per-corpus in-memory
// cosine indices with a gob snapshot on disk so a restart does not force
// reingestion.
package memoryDB

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

type entry struct {
	Chunk ragModel.Chunk
	Norm  float64
}

// index is immutable once published. Rebuilds construct a fresh index and
// swap the registry pointer, so readers never see partial state.
type index struct {
	Entries []entry
}

type DB struct {
	storeDir string
	logger   *logger_i.Logger

	mu      sync.RWMutex
	indices map[ragModel.Corpus]*index
	loaded  map[ragModel.Corpus]bool

	// one writer per corpus
	rebuildMu map[ragModel.Corpus]*sync.Mutex
}

func New(storeDir string) *DB {
	db := &DB{
		storeDir:  storeDir,
		logger:    logger_i.NewLogger("Memory VectorDB"),
		indices:   make(map[ragModel.Corpus]*index),
		loaded:    make(map[ragModel.Corpus]bool),
		rebuildMu: make(map[ragModel.Corpus]*sync.Mutex),
	}
	for _, c := range ragModel.AllCorpora() {
		db.rebuildMu[c] = &sync.Mutex{}
	}
	return db
}

// Build replaces the corpus index with one built from chunks. A concurrent
// Build on the same corpus fails immediately rather than queueing; other
// corpora are unaffected.
func (db *DB) Build(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error {
	mu, ok := db.rebuildMu[corpus]
	if !ok {
		return fmt.Errorf("unknown corpus %q", corpus)
	}
	if !mu.TryLock() {
		return fmt.Errorf("corpus %s: %w", corpus, vectorDB.ErrRebuildInProgress)
	}
	defer mu.Unlock()

	idx := newIndex(chunks)
	if err := db.persist(corpus, idx); err != nil {
		return err
	}

	db.mu.Lock()
	db.indices[corpus] = idx
	db.loaded[corpus] = true
	db.mu.Unlock()

	db.logger.Info("Corpus index rebuilt", "corpus", corpus, "chunks", len(idx.Entries))
	return nil
}

// Add appends chunks to an existing corpus index, used for single-document
// additions where a full rebuild is wasteful.
func (db *DB) Add(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error {
	mu, ok := db.rebuildMu[corpus]
	if !ok {
		return fmt.Errorf("unknown corpus %q", corpus)
	}
	if !mu.TryLock() {
		return fmt.Errorf("corpus %s: %w", corpus, vectorDB.ErrRebuildInProgress)
	}
	defer mu.Unlock()

	current := db.getIndex(corpus)
	merged := &index{Entries: make([]entry, 0, len(current.Entries)+len(chunks))}
	merged.Entries = append(merged.Entries, current.Entries...)
	merged.Entries = append(merged.Entries, newIndex(chunks).Entries...)

	if err := db.persist(corpus, merged); err != nil {
		return err
	}

	db.mu.Lock()
	db.indices[corpus] = merged
	db.loaded[corpus] = true
	db.mu.Unlock()
	return nil
}

// Query scores every chunk in the corpus by cosine similarity and returns
// the topK best. An absent corpus index yields an empty result set.
func (db *DB) Query(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	idx := db.getIndex(corpus)
	if len(idx.Entries) == 0 {
		return nil, nil
	}

	qNorm := norm(vector)
	if qNorm == 0 {
		return nil, nil
	}

	results := make([]ragModel.RetrievalResult, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Norm == 0 || len(e.Chunk.Vector) != len(vector) {
			continue
		}
		score := dot(vector, e.Chunk.Vector) / (qNorm * e.Norm)
		results = append(results, ragModel.RetrievalResult{
			File:    e.Chunk.DocName,
			Snippet: e.Chunk.Text,
			Score:   score,
			Corpus:  corpus,
			Ordinal: e.Chunk.Ordinal,
		})
	}

	// Highest score first; equal scores fall back to document order so
	// results are deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].File != results[j].File {
			return results[i].File < results[j].File
		}
		return results[i].Ordinal < results[j].Ordinal
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// getIndex returns the published index, lazily loading the disk snapshot the
// first time a corpus is touched.
func (db *DB) getIndex(corpus ragModel.Corpus) *index {
	db.mu.RLock()
	idx, ok := db.indices[corpus]
	loaded := db.loaded[corpus]
	db.mu.RUnlock()
	if ok {
		return idx
	}
	if loaded {
		return &index{}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if idx, ok := db.indices[corpus]; ok {
		return idx
	}
	idx = db.loadSnapshot(corpus)
	db.loaded[corpus] = true
	if idx != nil {
		db.indices[corpus] = idx
		return idx
	}
	return &index{}
}

func newIndex(chunks []ragModel.Chunk) *index {
	idx := &index{Entries: make([]entry, 0, len(chunks))}
	for _, c := range chunks {
		idx.Entries = append(idx.Entries, entry{Chunk: c, Norm: norm(c.Vector)})
	}
	return idx
}

func (db *DB) snapshotPath(corpus ragModel.Corpus) string {
	return filepath.Join(db.storeDir, string(corpus)+".gob")
}

func (db *DB) loadSnapshot(corpus ragModel.Corpus) *index {
	idx, err := readSnapshot(db.snapshotPath(corpus))
	if err != nil {
		if !os.IsNotExist(err) {
			db.logger.Warn("Could not load corpus snapshot", "corpus", corpus, "error", err)
		}
		return nil
	}
	db.logger.Info("Corpus snapshot loaded", "corpus", corpus, "chunks", len(idx.Entries))
	return idx
}

func (db *DB) persist(corpus ragModel.Corpus, idx *index) error {
	if err := writeSnapshot(db.snapshotPath(corpus), idx); err != nil {
		return fmt.Errorf("persisting corpus %s: %w", corpus, err)
	}
	return nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
