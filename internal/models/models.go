package models

// Page is one unit of extracted text: a PDF page, a slide, a sheet,
// or a whole file for single-body formats.
type Page struct {
	Source     string
	PageNumber int
	Text       string
	FromOCR    bool
}

// Warning records a degraded extraction step. Extraction never aborts a
// batch over a single page; it reports the gap here instead.
type Warning struct {
	Source     string `json:"file"`
	PageNumber int    `json:"page"`
	Reason     string `json:"reason"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
}

// Retrieved is a chunk returned by a similarity search.
type Retrieved struct {
	Chunk      Chunk
	Similarity float32
}

// Turn is one question/answer exchange of a conversation.
type Turn struct {
	Question string
	Answer   string
}

// Message is the wire view of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Citation points at the retrieved evidence behind an answer.
type Citation struct {
	PageNumber int    `json:"page"`
	Source     string `json:"file"`
	Snippet    string `json:"snippet"`
}

// SnippetLen is how much of a chunk a citation carries.
const SnippetLen = 200

// Snippet returns the first n characters of s, not splitting runes.
func Snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
