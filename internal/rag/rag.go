package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"report-rag/internal/chromemdb"
	"report-rag/internal/chunker"
	"report-rag/internal/docstore"
	"report-rag/internal/helper"
	"report-rag/internal/llmservice"
	"report-rag/internal/models"
	"report-rag/internal/parser"
)

var (
	// ErrNotReady means a question arrived before any successful build.
	ErrNotReady = errors.New("no conversation found, process documents first")
	// ErrInvalidInput means a comparison was not given exactly two documents.
	ErrInvalidInput = errors.New("please select exactly 2 documents for comparison")
	// ErrNoDocuments means a build was requested with an empty selection.
	ErrNoDocuments = errors.New("no documents selected")
	// ErrEmptyQuestion rejects blank questions before any model call.
	ErrEmptyQuestion = errors.New("question must not be empty")
)

// Resolver binds an llm choice string to a generation client.
type Resolver interface {
	Resolve(choice string) (*llmservice.Client, error)
}

// Orchestrator runs the build, ask, and compare flows over the shared
// document store and embedder.
type Orchestrator struct {
	store     *docstore.Store
	extractor *parser.Extractor
	chunker   *chunker.Chunker
	embedder  *embeddings.EmbedderImpl
	resolver  Resolver
	topK      int
}

func NewOrchestrator(store *docstore.Store, extractor *parser.Extractor, ch *chunker.Chunker, embedder *embeddings.EmbedderImpl, resolver Resolver, topK int) *Orchestrator {
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		resolver:  resolver,
		topK:      topK,
	}
}

// BuildResult reports what one processing call ingested.
type BuildResult struct {
	SessionID string
	Documents int
	Pages     int
	Chunks    int
	Warnings  []models.Warning
}

// Build extracts, chunks, embeds, and indexes the named documents, then
// installs the new index with an empty conversation in one step. On any
// failure the session keeps its previous state. Missing documents are
// collected and reported together before any extraction starts.
func (o *Orchestrator) Build(ctx context.Context, session *Session, names []string) (*BuildResult, error) {
	entries, err := o.resolveAll(names)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	var warnings []models.Warning
	for _, entry := range entries {
		p, w, err := o.extractor.Extract(ctx, entry.Name, entry.Path)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
		pages = append(pages, p...)
		warnings = append(warnings, w...)
	}

	chunks, err := o.chunker.Chunk(pages)
	if err != nil {
		return nil, err
	}

	index, err := chromemdb.BuildIndex(ctx, chunks, o.embedder)
	if err != nil {
		return nil, err
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	session.install(id, index)

	log.Info().
		Str("session", id).
		Int("documents", len(entries)).
		Int("pages", len(pages)).
		Int("chunks", len(chunks)).
		Int("warnings", len(warnings)).
		Msg("Processed documents")

	return &BuildResult{
		SessionID: id,
		Documents: len(entries),
		Pages:     len(pages),
		Chunks:    len(chunks),
		Warnings:  warnings,
	}, nil
}

// AskResult carries the answer, the full updated history, and citations
// for each retrieved chunk in retrieval order.
type AskResult struct {
	Answer    string
	History   []models.Message
	Citations []models.Citation
}

// Ask answers one question against the session's index, grounded in the
// top matching chunks. The llm choice is bound once at entry; switching
// backends between questions never resets history. Follow-up questions
// are first condensed into a standalone form using the history.
func (o *Orchestrator) Ask(ctx context.Context, session *Session, question, choice string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	client, err := o.resolver.Resolve(choice)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.index == nil {
		return nil, ErrNotReady
	}

	standalone := question
	if len(session.turns) > 0 {
		standalone, err = o.condense(ctx, client, session.turns, question)
		if err != nil {
			return nil, err
		}
	}

	retrieved, err := session.index.Search(ctx, standalone, o.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := o.answer(ctx, client, retrieved, standalone)
	if err != nil {
		return nil, err
	}

	session.turns = append(session.turns, models.Turn{Question: question, Answer: answer})

	log.Debug().
		Str("session", session.id).
		Str("backend", string(client.Backend())).
		Int("retrieved", len(retrieved)).
		Int("turns", len(session.turns)).
		Msg("Answered question")

	return &AskResult{
		Answer:    answer,
		History:   transcript(session.turns),
		Citations: citations(retrieved),
	}, nil
}

// condense rewrites a follow-up into a standalone question using the
// backend itself. The first turn skips it: there is no history to fold in.
func (o *Orchestrator) condense(ctx context.Context, client *llmservice.Client, turns []models.Turn, question string) (string, error) {
	prompt := fmt.Sprintf(models.CondensePromptTemplate, formatHistory(turns), question)
	standalone, err := client.Prompt(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("condensing question: %w", err)
	}
	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		// degenerate rewrite, keep the raw question
		return question, nil
	}
	return standalone, nil
}

func (o *Orchestrator) answer(ctx context.Context, client *llmservice.Client, retrieved []models.Retrieved, question string) (string, error) {
	var contextText strings.Builder
	for i, r := range retrieved {
		if i > 0 {
			contextText.WriteString(models.ContextSeparator)
		}
		contextText.WriteString(r.Chunk.Content)
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: models.SystemPrompt}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: fmt.Sprintf(models.GroundedPromptTemplate, contextText.String(), question)}},
		},
	}

	answer, err := client.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// CompareResult keys each summary by document name.
type CompareResult struct {
	Comparison string
	Summaries  map[string]string
}

// Compare summarizes exactly two documents independently and then
// contrasts the summaries. It never touches conversational state; each
// call stands alone.
func (o *Orchestrator) Compare(ctx context.Context, names []string, choice string) (*CompareResult, error) {
	if len(names) != 2 {
		return nil, ErrInvalidInput
	}
	client, err := o.resolver.Resolve(choice)
	if err != nil {
		return nil, err
	}
	entries, err := o.resolveAll(names)
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]string, len(entries))
	ordered := make([]string, 0, len(entries))
	for _, entry := range entries {
		text, err := o.documentText(ctx, entry)
		if err != nil {
			return nil, err
		}
		summary, err := client.Prompt(ctx, fmt.Sprintf(models.SummaryPromptTemplate, text))
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", entry.Name, err)
		}
		summaries[entry.Name] = strings.TrimSpace(summary)
		ordered = append(ordered, entry.Name)
	}

	comparison, err := client.Prompt(ctx, fmt.Sprintf(models.ComparePromptTemplate, summaries[ordered[0]], summaries[ordered[1]]))
	if err != nil {
		return nil, fmt.Errorf("comparing reports: %w", err)
	}

	log.Debug().Strs("documents", ordered).Str("backend", string(client.Backend())).Msg("Compared reports")
	return &CompareResult{Comparison: strings.TrimSpace(comparison), Summaries: summaries}, nil
}

// documentText extracts and chunks one document, then joins the chunk
// texts back together. Overlap stays in the joined text, the same bytes
// the retrieval index would see.
func (o *Orchestrator) documentText(ctx context.Context, entry docstore.Entry) (string, error) {
	pages, warnings, err := o.extractor.Extract(ctx, entry.Name, entry.Path)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	for _, w := range warnings {
		log.Warn().Str("file", w.Source).Int("page", w.PageNumber).Str("reason", w.Reason).Msg("extraction degraded")
	}

	chunks, err := o.chunker.Chunk(pages)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	return strings.Join(texts, " "), nil
}

// resolveAll maps names onto stored entries, reporting every missing
// document at once.
func (o *Orchestrator) resolveAll(names []string) ([]docstore.Entry, error) {
	if len(names) == 0 {
		return nil, ErrNoDocuments
	}
	entries := make([]docstore.Entry, 0, len(names))
	var missing []string
	for _, name := range names {
		entry, err := o.store.Resolve(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		entries = append(entries, entry)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, strings.Join(missing, ", "))
	}
	return entries, nil
}

// formatHistory renders turns the way buffer memory does, Human/AI lines.
func formatHistory(turns []models.Turn) string {
	var sb strings.Builder
	for _, turn := range turns {
		sb.WriteString("Human: " + turn.Question + "\n")
		sb.WriteString("AI: " + turn.Answer + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func transcript(turns []models.Turn) []models.Message {
	messages := make([]models.Message, 0, len(turns)*2)
	for _, turn := range turns {
		messages = append(messages,
			models.Message{Role: models.RoleHuman, Content: turn.Question},
			models.Message{Role: models.RoleAI, Content: turn.Answer},
		)
	}
	return messages
}

func citations(retrieved []models.Retrieved) []models.Citation {
	out := make([]models.Citation, 0, len(retrieved))
	for _, r := range retrieved {
		out = append(out, models.Citation{
			PageNumber: r.Chunk.PageNumber,
			Source:     r.Chunk.Source,
			Snippet:    models.Snippet(r.Chunk.Content, models.SnippetLen),
		})
	}
	return out
}
