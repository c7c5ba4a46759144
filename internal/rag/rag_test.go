package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dream-ai/ragbook/internal/llm"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

// keywordEmbedder maps text onto three topics so tests control similarity.
type keywordEmbedder struct{}

func (keywordEmbedder) Model() string { return "keywords" }

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	for i, kw := range []string{"paris", "rome", "tokyo"} {
		if strings.Contains(text, kw) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type fakeGenerator struct {
	lastReq llm.Request
	err     error
}

func (g *fakeGenerator) Model() string { return "fake-llm" }

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.lastReq = req
	return " the answer ", g.err
}

func (g *fakeGenerator) GenerateStream(_ context.Context, req llm.Request, onChunk func(string)) error {
	g.lastReq = req
	if g.err != nil {
		return g.err
	}
	for _, s := range []string{"the ", "answer"} {
		onChunk(s)
	}
	return nil
}

type recordingStore struct {
	*vectorstore.MemoryStore
	saved []*vectorstore.Conversation
	err   error
}

func (s *recordingStore) SaveConversation(_ context.Context, conv *vectorstore.Conversation) error {
	s.saved = append(s.saved, conv)
	return s.err
}

func seedStore(t *testing.T, store vectorstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, 3))

	doc := &vectorstore.Document{ID: uuid.New(), Path: "/books/cities.pdf", Hash: "h", FileType: "pdf"}
	var chunks []vectorstore.Chunk
	for i, text := range []string{"Paris is the capital of France.", "Rome has the Colosseum.", "Tokyo is in Japan."} {
		vec, _ := keywordEmbedder{}.Embed(ctx, text)
		chunks = append(chunks, vectorstore.Chunk{
			ID: uuid.New(), DocumentID: doc.ID, Index: i, Page: i + 1, Content: text, Embedding: vec,
		})
	}
	require.NoError(t, store.Upsert(ctx, doc, chunks))
}

func TestRetrieverRanksClosestFirst(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store)

	res, err := NewRetriever(store, keywordEmbedder{}, 2).Retrieve(context.Background(), "tell me about Rome")
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "Rome has the Colosseum.", res.Chunks[0].Chunk.Content)
	assert.GreaterOrEqual(t, res.Chunks[0].Score, res.Chunks[1].Score)
}

func TestRetrieveHybridKeepsKeywordMatches(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store)

	res, err := NewRetriever(store, keywordEmbedder{}, 3).RetrieveHybrid(context.Background(), "Where is Tokyo and what is Japan?")
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "Tokyo is in Japan.", res.Chunks[0].Chunk.Content)

	assert.Equal(t, []string{"tokyo", "japan"}, extractKeywords("Where is Tokyo and what is Japan?"))
}

func TestFilterByKeywords(t *testing.T) {
	chunks := []vectorstore.SearchResult{
		{Chunk: vectorstore.Chunk{Content: "alpha beta"}},
		{Chunk: vectorstore.Chunk{Content: "gamma"}},
		{Chunk: vectorstore.Chunk{Content: "beta delta"}},
		{Chunk: vectorstore.Chunk{Content: "Beta epsilon"}},
	}

	got := filterByKeywords(chunks, []string{"beta"}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha beta", got[0].Chunk.Content)
	assert.Equal(t, "beta delta", got[1].Chunk.Content)

	single := filterByKeywords(chunks, []string{"gamma"}, 4)
	require.Len(t, single, 1)
	assert.Equal(t, "gamma", single[0].Chunk.Content)

	assert.Len(t, filterByKeywords(chunks, []string{"zeta"}, 3), 3)
	assert.Len(t, filterByKeywords(chunks, nil, 2), 2)
	assert.Len(t, filterByKeywords(chunks[:1], []string{"zeta"}, 3), 1)
}

// fixedEmbedder embeds every text as the same vector.
type fixedEmbedder []float32

func (fixedEmbedder) Model() string { return "fixed" }

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return e, nil }

func (e fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e
	}
	return out, nil
}

func storeWithVectors(t *testing.T, contents []string, vectors [][]float32) vectorstore.Store {
	t.Helper()
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Init(ctx, 3))

	doc := &vectorstore.Document{ID: uuid.New(), Path: "/notes.txt", Hash: "v", FileType: "txt"}
	chunks := make([]vectorstore.Chunk, len(contents))
	for i, text := range contents {
		chunks[i] = vectorstore.Chunk{ID: uuid.New(), DocumentID: doc.ID, Index: i, Content: text, Embedding: vectors[i]}
	}
	require.NoError(t, store.Upsert(ctx, doc, chunks))
	return store
}

func contents(res *RetrievalResult) []string {
	out := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		out[i] = c.Chunk.Content
	}
	return out
}

func TestRetrieveHybridFindsMatchBelowTopK(t *testing.T) {
	store := storeWithVectors(t,
		[]string{"alpha", "beta", "gamma zebra"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}},
	)
	r := NewRetriever(store, fixedEmbedder{1, 0, 0}, 2)

	res, err := r.RetrieveHybrid(context.Background(), "zebra")
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma zebra"}, contents(res))

	res, err = r.RetrieveHybrid(context.Background(), "unicorn")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, contents(res))
}

func TestRetrieveHybridKeepsSingleMatch(t *testing.T) {
	store := storeWithVectors(t,
		[]string{"a zebra", "b", "c", "d"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0.8, 0.2, 0}, {0.7, 0.3, 0}},
	)

	res, err := NewRetriever(store, fixedEmbedder{1, 0, 0}, 4).RetrieveHybrid(context.Background(), "zebra")
	require.NoError(t, err)
	assert.Equal(t, []string{"a zebra"}, contents(res))
}

func TestBuildContextLabelsAndTruncates(t *testing.T) {
	result := &RetrievalResult{Chunks: []vectorstore.SearchResult{
		{DocumentPath: "/a/book.pdf", Chunk: vectorstore.Chunk{Page: 4, Content: "first excerpt"}},
		{DocumentPath: "/a/notes.txt", Chunk: vectorstore.Chunk{Content: "second excerpt"}},
	}}

	ctxText := NewContextBuilder(100).BuildContext(result)
	assert.Contains(t, ctxText, "[1] book.pdf, page 4\nfirst excerpt")
	assert.Contains(t, ctxText, "[2] notes.txt\nsecond excerpt")
	assert.NotContains(t, ctxText, "truncated")

	short := NewContextBuilder(5).BuildContext(result)
	assert.True(t, strings.HasSuffix(short, truncationMarker))
	assert.Equal(t, 20+len(truncationMarker), len(short))

	assert.Empty(t, NewContextBuilder(10).BuildContext(&RetrievalResult{}))
}

func TestBuildPrompt(t *testing.T) {
	p := NewContextBuilder(0).BuildPrompt("CTX", "What?")
	assert.Contains(t, p, "Context:\nCTX")
	assert.Contains(t, p, "Question: What?")
	assert.Contains(t, p, "don't know")

	noCtx := NewContextBuilder(0).BuildPrompt("", "What?")
	assert.NotContains(t, noCtx, "Context:")
}

func TestPipelineAskSavesConversation(t *testing.T) {
	store := &recordingStore{MemoryStore: vectorstore.NewMemoryStore()}
	seedStore(t, store)
	gen := &fakeGenerator{}

	p := NewPipeline(NewRetriever(store, keywordEmbedder{}, 1), NewContextBuilder(500), gen, store, Options{MaxTokens: 64, Temperature: 0.2})

	ans, err := p.Ask(context.Background(), "What is the capital of France? Paris?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", ans.Text)
	assert.Equal(t, "fake-llm", ans.Model)
	require.Len(t, ans.Sources, 1)
	assert.Contains(t, gen.lastReq.Prompt, "Paris is the capital of France.")
	assert.Equal(t, 64, gen.lastReq.MaxTokens)
	assert.Equal(t, SystemPrompt, gen.lastReq.System)

	require.Len(t, store.saved, 1)
	assert.Equal(t, []uuid.UUID{ans.Sources[0].Chunk.ID}, store.saved[0].ChunkIDs)
}

func TestPipelineAskStream(t *testing.T) {
	store := &recordingStore{MemoryStore: vectorstore.NewMemoryStore(), err: errors.New("disk full")}
	seedStore(t, store)

	p := NewPipeline(NewRetriever(store, keywordEmbedder{}, 2), NewContextBuilder(500), &fakeGenerator{}, store, Options{})

	var streamed strings.Builder
	ans, err := p.AskStream(context.Background(), "rome", func(s string) { streamed.WriteString(s) })
	require.NoError(t, err)
	assert.Equal(t, "the answer", streamed.String())
	assert.Equal(t, "the answer", ans.Text)
	assert.Len(t, store.saved, 1)
}

func TestPipelineErrors(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedStore(t, store)
	gen := &fakeGenerator{err: errors.New("rate limited")}
	p := NewPipeline(NewRetriever(store, keywordEmbedder{}, 2), NewContextBuilder(500), gen, store, Options{})

	_, err := p.Ask(context.Background(), "   ")
	assert.Error(t, err)

	_, err = p.Ask(context.Background(), "paris")
	assert.ErrorContains(t, err, "rate limited")
}
