package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"report-rag/internal/chromemdb"
	"report-rag/internal/chunker"
	"report-rag/internal/docstore"
	"report-rag/internal/llmservice"
	"report-rag/internal/models"
	"report-rag/internal/parser"
)

// scriptedModel replays canned responses in call order and records every
// prompt it was given.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	calls     int
	prompts   []string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
				sb.WriteString("\n")
			}
		}
	}
	m.prompts = append(m.prompts, sb.String())

	resp := m.responses[m.calls%len(m.responses)]
	m.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: resp}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

type fakeResolver struct {
	model llms.Model
}

func (r *fakeResolver) Resolve(choice string) (*llmservice.Client, error) {
	backend, err := llmservice.ParseBackend(choice)
	if err != nil {
		return nil, err
	}
	return llmservice.NewClient(backend, r.model, 0.01, 128, nil), nil
}

type fakeEmbeddingClient struct{}

func (fakeEmbeddingClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := []float32{0.1, 0.1, 0.1, 0.1}
		for dim, word := range []string{"revenue", "expense", "headcount", "forecast"} {
			if strings.Contains(lower, word) {
				v[dim] = 1
			}
		}
		vectors[i] = v
	}
	return vectors, nil
}

type testRig struct {
	store        *docstore.Store
	orchestrator *Orchestrator
	session      *Session
	model        *scriptedModel
}

func newTestRig(t *testing.T, responses ...string) *testRig {
	t.Helper()

	store, err := docstore.New(t.TempDir(), 8)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	ch, err := chunker.New(1000, 200, "\n")
	require.NoError(t, err)

	embedder, err := embeddings.NewEmbedder(fakeEmbeddingClient{})
	require.NoError(t, err)

	model := &scriptedModel{responses: responses}
	orch := NewOrchestrator(store, parser.NewExtractor(nil, false), ch, embedder, &fakeResolver{model: model}, 4)
	return &testRig{store: store, orchestrator: orch, session: NewSession(), model: model}
}

func (r *testRig) addDoc(t *testing.T, name, content string) {
	t.Helper()
	_, err := r.store.Save(name, strings.NewReader(content))
	require.NoError(t, err)
}

func TestBuild(t *testing.T) {
	rig := newTestRig(t, "unused")
	rig.addDoc(t, "report.txt", "Revenue grew 10 percent this quarter.\nExpenses fell slightly.")

	res, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"report.txt"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 1, res.Pages)
	assert.GreaterOrEqual(t, res.Chunks, 1)
	assert.Empty(t, res.Warnings)
	assert.True(t, rig.session.Ready())
	assert.Equal(t, res.SessionID, rig.session.ID())
	assert.Zero(t, rig.model.calls)
}

func TestBuildNoDocuments(t *testing.T) {
	rig := newTestRig(t, "unused")

	_, err := rig.orchestrator.Build(context.Background(), rig.session, nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestBuildMissingDocuments(t *testing.T) {
	rig := newTestRig(t, "unused")
	rig.addDoc(t, "real.txt", "content")

	_, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"real.txt", "ghost.txt", "phantom.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost.txt")
	assert.Contains(t, err.Error(), "phantom.txt")
	assert.False(t, rig.session.Ready())
}

func TestBuildEmptyContent(t *testing.T) {
	rig := newTestRig(t, "unused")
	rig.addDoc(t, "blank.txt", "   \n  \n")

	_, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"blank.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, chromemdb.ErrNoChunks)
	assert.False(t, rig.session.Ready())
}

func TestAskBeforeBuild(t *testing.T) {
	rig := newTestRig(t, "unused")

	_, err := rig.orchestrator.Ask(context.Background(), rig.session, "anything?", "Phi")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestAskEmptyQuestion(t *testing.T) {
	rig := newTestRig(t, "unused")

	_, err := rig.orchestrator.Ask(context.Background(), rig.session, "   ", "Phi")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAskUnknownBackend(t *testing.T) {
	rig := newTestRig(t, "unused")

	_, err := rig.orchestrator.Ask(context.Background(), rig.session, "anything?", "GPT-9")
	assert.ErrorIs(t, err, llmservice.ErrUnknownBackend)
}

func TestAskFirstTurn(t *testing.T) {
	rig := newTestRig(t, "Revenue grew by 10 percent.")
	rig.addDoc(t, "report.txt", "Revenue grew 10 percent this quarter.\nExpenses fell slightly.")

	_, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"report.txt"})
	require.NoError(t, err)

	res, err := rig.orchestrator.Ask(context.Background(), rig.session, "What happened to revenue?", "Phi")
	require.NoError(t, err)

	assert.Equal(t, "Revenue grew by 10 percent.", res.Answer)
	// no condense call on the first turn
	assert.Equal(t, 1, rig.model.calls)

	// history already includes the turn just answered
	require.Len(t, res.History, 2)
	assert.Equal(t, models.RoleHuman, res.History[0].Role)
	assert.Equal(t, "What happened to revenue?", res.History[0].Content)
	assert.Equal(t, models.RoleAI, res.History[1].Role)
	assert.Equal(t, "Revenue grew by 10 percent.", res.History[1].Content)

	require.NotEmpty(t, res.Citations)
	assert.Equal(t, "report.txt", res.Citations[0].Source)
	assert.Equal(t, 1, res.Citations[0].PageNumber)
	assert.NotEmpty(t, res.Citations[0].Snippet)

	// the grounded prompt carried the retrieved context
	require.Len(t, rig.model.prompts, 1)
	assert.Contains(t, rig.model.prompts[0], models.SystemPrompt)
	assert.Contains(t, rig.model.prompts[0], "Context:")
	assert.Contains(t, rig.model.prompts[0], "Revenue grew 10 percent this quarter.")
}

func TestAskFollowUpCondenses(t *testing.T) {
	rig := newTestRig(t,
		"Because sales rose.",
		"Why did revenue grow last quarter?",
		"Marketing spend drove it.",
	)
	rig.addDoc(t, "report.txt", "Revenue grew 10 percent this quarter.\nExpenses fell slightly.")

	_, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"report.txt"})
	require.NoError(t, err)

	_, err = rig.orchestrator.Ask(context.Background(), rig.session, "What happened to revenue?", "Phi")
	require.NoError(t, err)

	res, err := rig.orchestrator.Ask(context.Background(), rig.session, "Why?", "Phi")
	require.NoError(t, err)
	assert.Equal(t, "Marketing spend drove it.", res.Answer)
	assert.Equal(t, 3, rig.model.calls)

	// condense prompt folds the history around the follow-up
	condensePrompt := rig.model.prompts[1]
	assert.Contains(t, condensePrompt, "Standalone question:")
	assert.Contains(t, condensePrompt, "Human: What happened to revenue?")
	assert.Contains(t, condensePrompt, "AI: Because sales rose.")
	assert.Contains(t, condensePrompt, "Why?")

	// answering uses the condensed standalone question
	assert.Contains(t, rig.model.prompts[2], "Why did revenue grow last quarter?")

	// the raw question is what lands in history
	require.Len(t, res.History, 4)
	assert.Equal(t, "Why?", res.History[2].Content)
	assert.Equal(t, "Marketing spend drove it.", res.History[3].Content)
}

func TestAskSwitchBackendKeepsHistory(t *testing.T) {
	rig := newTestRig(t, "first answer", "standalone", "second answer")
	rig.addDoc(t, "report.txt", "Revenue grew 10 percent this quarter.")

	_, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"report.txt"})
	require.NoError(t, err)

	_, err = rig.orchestrator.Ask(context.Background(), rig.session, "What happened to revenue?", "Phi")
	require.NoError(t, err)

	res, err := rig.orchestrator.Ask(context.Background(), rig.session, "And expenses?", "Mixtral")
	require.NoError(t, err)
	assert.Len(t, res.History, 4)
}

func TestBuildResetsConversation(t *testing.T) {
	rig := newTestRig(t, "an answer")
	rig.addDoc(t, "report.txt", "Revenue grew 10 percent this quarter.")

	first, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"report.txt"})
	require.NoError(t, err)
	_, err = rig.orchestrator.Ask(context.Background(), rig.session, "What happened to revenue?", "Phi")
	require.NoError(t, err)
	require.Len(t, rig.session.History(), 1)

	second, err := rig.orchestrator.Build(context.Background(), rig.session, []string{"report.txt"})
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Empty(t, rig.session.History())
}

func TestCompare(t *testing.T) {
	rig := newTestRig(t, "Summary A", "Summary B", "They differ on revenue.")
	rig.addDoc(t, "a.txt", "Report A revenue details.")
	rig.addDoc(t, "b.txt", "Report B expense details.")

	res, err := rig.orchestrator.Compare(context.Background(), []string{"a.txt", "b.txt"}, "Mixtral")
	require.NoError(t, err)

	assert.Equal(t, "They differ on revenue.", res.Comparison)
	assert.Equal(t, "Summary A", res.Summaries["a.txt"])
	assert.Equal(t, "Summary B", res.Summaries["b.txt"])
	assert.Equal(t, 3, rig.model.calls)

	// summaries see the document text, the comparison sees both summaries
	assert.Contains(t, rig.model.prompts[0], "Report A revenue details.")
	assert.Contains(t, rig.model.prompts[1], "Report B expense details.")
	assert.Contains(t, rig.model.prompts[2], "Summary A")
	assert.Contains(t, rig.model.prompts[2], "Summary B")

	// comparing never touches conversational state
	assert.False(t, rig.session.Ready())
}

func TestCompareRequiresExactlyTwo(t *testing.T) {
	rig := newTestRig(t, "unused")
	rig.addDoc(t, "a.txt", "a")
	rig.addDoc(t, "b.txt", "b")
	rig.addDoc(t, "c.txt", "c")

	_, err := rig.orchestrator.Compare(context.Background(), []string{"a.txt"}, "Phi")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = rig.orchestrator.Compare(context.Background(), []string{"a.txt", "b.txt", "c.txt"}, "Phi")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// the count check runs before backend validation
	_, err = rig.orchestrator.Compare(context.Background(), []string{"a.txt"}, "Bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompareMissingDocument(t *testing.T) {
	rig := newTestRig(t, "unused")
	rig.addDoc(t, "a.txt", "a")

	_, err := rig.orchestrator.Compare(context.Background(), []string{"a.txt", "ghost.txt"}, "Phi")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestFormatHistory(t *testing.T) {
	turns := []models.Turn{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
	}
	assert.Equal(t, "Human: q1\nAI: a1\nHuman: q2\nAI: a2", formatHistory(turns))
}
