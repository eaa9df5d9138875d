package chunker

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"

	"report-rag/internal/models"
)

// Chunker splits page text into overlapping, size-bounded chunks.
// Splitting is separator-first: pieces are cut on the separator and
// greedily merged up to the size limit, so a single piece with no
// separator inside may exceed it.
type Chunker struct {
	splitter  textsplitter.RecursiveCharacter
	chunkSize int
}

func New(size, overlap int, separator string) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", overlap)
	}
	if separator == "" {
		separator = "\n"
	}
	sp := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{separator}),
	)
	return &Chunker{splitter: sp, chunkSize: size}, nil
}

// Chunk splits pages in order, carrying source and page number onto every
// derived chunk. ChunkID restarts at 1 on each page. Empty pages yield
// nothing; no pages yield an empty slice, not an error.
func (c *Chunker) Chunk(pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		parts, err := c.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s page %d: %w", page.Source, page.PageNumber, err)
		}
		id := 0
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if len(part) > c.chunkSize {
				log.Warn().
					Str("file", page.Source).
					Int("page", page.PageNumber).
					Int("chars", len(part)).
					Msg("chunk exceeds configured size, no separator to split on")
			}
			id++
			chunks = append(chunks, models.Chunk{
				Content:    part,
				Source:     page.Source,
				PageNumber: page.PageNumber,
				ChunkID:    id,
			})
		}
	}
	return chunks, nil
}
