package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-rag/internal/models"
)

func TestNewValidation(t *testing.T) {
	_, err := New(0, 0, "\n")
	assert.Error(t, err)

	_, err = New(100, 100, "\n")
	assert.Error(t, err)

	_, err = New(100, -1, "\n")
	assert.Error(t, err)

	c, err := New(100, 20, "")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestChunkCarriesMetadata(t *testing.T) {
	c, err := New(1000, 200, "\n")
	require.NoError(t, err)

	pages := []models.Page{
		{Source: "a.pdf", PageNumber: 1, Text: "first page text"},
		{Source: "a.pdf", PageNumber: 2, Text: "second page text"},
	}
	chunks, err := c.Chunk(pages)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "a.pdf", chunks[0].Source)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[0].ChunkID)
	assert.Equal(t, 2, chunks[1].PageNumber)
	assert.Equal(t, 1, chunks[1].ChunkID)
}

func TestChunkSplitsLongPages(t *testing.T) {
	c, err := New(100, 20, "\n")
	require.NoError(t, err)

	lines := make([]string, 40)
	for i := range lines {
		lines[i] = strings.Repeat("x", 30)
	}
	page := models.Page{Source: "r.pdf", PageNumber: 1, Text: strings.Join(lines, "\n")}

	chunks, err := c.Chunk([]models.Page{page})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 100)
		assert.Equal(t, i+1, ch.ChunkID)
		assert.Equal(t, 1, ch.PageNumber)
	}
}

func TestChunkKeepsUnsplittablePiece(t *testing.T) {
	c, err := New(100, 20, "\n")
	require.NoError(t, err)

	page := models.Page{Source: "r.pdf", PageNumber: 1, Text: strings.Repeat("y", 300)}
	chunks, err := c.Chunk([]models.Page{page})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Content, 300)
}

func TestChunkSkipsEmptyPages(t *testing.T) {
	c, err := New(100, 20, "\n")
	require.NoError(t, err)

	pages := []models.Page{
		{Source: "a.pdf", PageNumber: 1, Text: "   \n  \n"},
		{Source: "a.pdf", PageNumber: 2, Text: "kept"},
	}
	chunks, err := c.Chunk(pages)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "kept", chunks[0].Content)
	assert.Equal(t, 2, chunks[0].PageNumber)
}

func TestChunkNoPages(t *testing.T) {
	c, err := New(100, 20, "\n")
	require.NoError(t, err)

	chunks, err := c.Chunk(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
