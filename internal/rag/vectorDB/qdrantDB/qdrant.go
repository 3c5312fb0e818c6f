// Package qdrantDB is the external retrieval backend for deployments whose
// corpora outgrow the in-memory index.
package qdrantDB

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/rag/vectorDB"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

var logger *logger_i.Logger
var qdrantInstance *qdrant.Client
var once sync.Once
var dimension = uint64(config.EmbeddingOutputDimensionality)

type DB struct {
	client *qdrant.Client

	rebuildMu map[ragModel.Corpus]*sync.Mutex
}

// GetQdrantClient dials qdrant once for the process. Returns nil when the
// client could not be constructed.
func GetQdrantClient(ctx context.Context, host string, port int) *DB {
	once.Do(func() {
		logger = logger_i.NewLogger("Qdrant")
		res := newClient(host, port)
		if res != nil {
			qdrantInstance = res
			go closeQdrant(ctx, qdrantInstance)
		}
	})

	if qdrantInstance == nil {
		return nil
	}
	db := &DB{
		client:    qdrantInstance,
		rebuildMu: make(map[ragModel.Corpus]*sync.Mutex),
	}
	for _, c := range ragModel.AllCorpora() {
		db.rebuildMu[c] = &sync.Mutex{}
	}
	return db
}

func newClient(host string, port int) *qdrant.Client {
	if host == "" {
		host = config.QdrantHost
		port = config.QdrantGrpcPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     host,
		Port:     port,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
	})
	if err != nil {
		logger.Error("could not instantiate: ", "error:", err)
		return nil
	}
	return client
}

func closeQdrant(ctx context.Context, qi *qdrant.Client) {
	<-ctx.Done()
	logger.Info("Shutting down Qdrant")
	if err := qi.Close(); err != nil {
		logger.Error("could not close Qdrant: ", "error:", err)
	}
}

func collectionFor(corpus ragModel.Corpus) string {
	return "chatcfd_" + string(corpus)
}

// Build drops and recreates the corpus collection before upserting. A read
// arriving mid-rebuild can see the collection empty; deployments that need
// strict atomicity use the in-memory backend.
func (db *DB) Build(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error {
	mu, ok := db.rebuildMu[corpus]
	if !ok {
		return fmt.Errorf("unknown corpus %q", corpus)
	}
	if !mu.TryLock() {
		return fmt.Errorf("corpus %s: %w", corpus, vectorDB.ErrRebuildInProgress)
	}
	defer mu.Unlock()

	name := collectionFor(corpus)
	exists, err := db.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		if err := db.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("dropping collection %s: %w", name, err)
		}
	}
	if err := db.createCollection(ctx, name); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	if err := db.upsert(ctx, name, chunks); err != nil {
		return err
	}
	logger.Info("Corpus collection rebuilt", "corpus", corpus, "chunks", len(chunks))
	return nil
}

func (db *DB) Add(ctx context.Context, corpus ragModel.Corpus, chunks []ragModel.Chunk) error {
	mu, ok := db.rebuildMu[corpus]
	if !ok {
		return fmt.Errorf("unknown corpus %q", corpus)
	}
	if !mu.TryLock() {
		return fmt.Errorf("corpus %s: %w", corpus, vectorDB.ErrRebuildInProgress)
	}
	defer mu.Unlock()

	name := collectionFor(corpus)
	if err := db.createCollection(ctx, name); err != nil {
		return fmt.Errorf("ensuring collection %s: %w", name, err)
	}
	return db.upsert(ctx, name, chunks)
}

func (db *DB) Query(ctx context.Context, corpus ragModel.Corpus, vector []float32, topK int) ([]ragModel.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	loggr := logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	name := collectionFor(corpus)
	exists, err := db.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		return nil, nil
	}

	result, err := db.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		loggr.Error("Error querying Qdrant: ", "error:", err)
		return nil, err
	}

	results := make([]ragModel.RetrievalResult, 0, len(result))
	for _, hit := range result {
		results = append(results, ragModel.RetrievalResult{
			File:    hit.Payload["doc_name"].GetStringValue(),
			Snippet: hit.Payload["content"].GetStringValue(),
			Score:   float64(hit.Score),
			Corpus:  corpus,
			Ordinal: int(hit.Payload["chunk_order"].GetIntegerValue()),
		})
	}
	return results, nil
}

func (db *DB) upsert(ctx context.Context, collectionName string, chunks []ragModel.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.Id),
			Vectors: qdrant.NewVectors(chunk.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":       chunk.Text,
				"doc_name":      chunk.DocName,
				"source_doc_id": chunk.DocId,
				"chunk_order":   chunk.Ordinal,
				"chunk_id":      chunk.Id,
				"corpus":        string(chunk.Corpus),
			}),
		}
	}

	_, err := db.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (db *DB) createCollection(ctx context.Context, collectionName string) error {
	exists, err := db.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return db.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}
