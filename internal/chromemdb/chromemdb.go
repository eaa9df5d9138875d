package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"report-rag/internal/models"
)

// ErrNoChunks means a build was attempted over zero usable chunks.
var ErrNoChunks = errors.New("no text chunks provided to generate embeddings")

const collectionName = "documents"

// Index is an in-memory similarity index over one build's chunks. Every
// processing call creates a fresh Index; an existing one is never updated
// in place.
type Index struct {
	collection *chromem.Collection
	embedder   *embeddings.EmbedderImpl
	count      int
}

// BuildIndex embeds all chunks and loads them into a new in-memory store.
func BuildIndex(ctx context.Context, chunks []models.Chunk, embedder *embeddings.EmbedderImpl) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s-%d-%d", chunk.Source, chunk.PageNumber, chunk.ChunkID),
			Content: chunk.Content,
			Metadata: map[string]string{
				"source": chunk.Source,
				"page":   strconv.Itoa(chunk.PageNumber),
				"chunk":  strconv.Itoa(chunk.ChunkID),
			},
			Embedding: vectors[i],
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %v", err)
	}

	log.Debug().Int("chunks", len(chunks)).Msg("Built vector index")
	return &Index{collection: collection, embedder: embedder, count: len(chunks)}, nil
}

// Count is the number of indexed chunks.
func (ix *Index) Count() int { return ix.count }

// Search returns up to k chunks by decreasing similarity to query. k is
// clamped to the index size.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]models.Retrieved, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if k > ix.count {
		k = ix.count
	}

	queryEmbedding, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := ix.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	retrieved := make([]models.Retrieved, 0, len(results))
	for _, res := range results {
		page, _ := strconv.Atoi(res.Metadata["page"])
		chunkID, _ := strconv.Atoi(res.Metadata["chunk"])
		retrieved = append(retrieved, models.Retrieved{
			Chunk: models.Chunk{
				Content:    res.Content,
				Source:     res.Metadata["source"],
				PageNumber: page,
				ChunkID:    chunkID,
			},
			Similarity: res.Similarity,
		})
	}
	return retrieved, nil
}
