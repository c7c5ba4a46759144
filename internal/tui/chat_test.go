package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dream-ai/ragbook/internal/rag"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

type stubAsker struct {
	answer *rag.Answer
	err    error
	got    string
}

func (s *stubAsker) Ask(_ context.Context, q string) (*rag.Answer, error) {
	s.got = q
	return s.answer, s.err
}

type stubLister []vectorstore.Document

func (s stubLister) Documents(context.Context) ([]vectorstore.Document, error) {
	return s, nil
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

// runCmd executes cmd and feeds back the first non-tick message.
func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			switch res := c().(type) {
			case answerMsg, docsMsg:
				next, _ := m.Update(res)
				return next.(Model)
			}
		}
		t.Fatal("no result message in batch")
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestChatAsksAndShowsSources(t *testing.T) {
	asker := &stubAsker{answer: &rag.Answer{
		Text: "It is **Paris**.",
		Sources: []vectorstore.SearchResult{
			{DocumentPath: "/books/geo.pdf", Chunk: vectorstore.Chunk{Page: 3}, Score: 0.91},
			{DocumentPath: "/books/geo.pdf", Chunk: vectorstore.Chunk{Page: 3}, Score: 0.80},
		},
	}}
	m := sized(t, New(context.Background(), asker, stubLister{}, "mistral"))
	m = typeText(m, "capital of France?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.True(t, m.loading)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.messages, 2)

	m = runCmd(t, m, cmd)
	assert.False(t, m.loading)
	assert.Equal(t, "capital of France?", asker.got)
	assert.Equal(t, "It is **Paris**.", m.messages[1].Content)
	assert.Equal(t, []string{"geo.pdf p.3 (0.91)"}, m.messages[1].Sources)
	assert.Contains(t, m.View(), "Sources:")
}

func TestChatShowsErrors(t *testing.T) {
	m := sized(t, New(context.Background(), &stubAsker{err: errors.New("timeout")}, stubLister{}, "m"))
	m = typeText(m, "hi")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = runCmd(t, next.(Model), cmd)

	assert.True(t, m.messages[1].Err)
	assert.Contains(t, m.messages[1].Content, "timeout")
}

func TestChatCommands(t *testing.T) {
	docs := stubLister{{Path: "/a/book.pdf", ChunkCount: 12, FileType: "pdf"}}
	m := sized(t, New(context.Background(), &stubAsker{}, docs, "m"))

	m = typeText(m, "/docs")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = runCmd(t, next.(Model), cmd)
	require.Len(t, m.messages, 1)
	assert.Contains(t, m.messages[0].Content, "book.pdf (12 chunks, pdf)")

	m = typeText(m, "/clear")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, next.(Model).messages)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestEnterIgnoredWhileLoadingOrEmpty(t *testing.T) {
	m := sized(t, New(context.Background(), &stubAsker{}, stubLister{}, "m"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	m.loading = true
	m = typeText(m, "question")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestProcessBold(t *testing.T) {
	assert.Equal(t, "no markers", processBold("no markers"))
	assert.Equal(t, "odd ** marker", processBold("odd ** marker"))
	assert.Contains(t, processBold("a **b** c"), "b")
	assert.NotContains(t, processBold("a **b** c"), "**")
}

func TestSourceLabelsDeduplicates(t *testing.T) {
	labels := sourceLabels([]vectorstore.SearchResult{
		{DocumentPath: "/x/notes.txt", Score: 0.5},
		{DocumentPath: "/x/notes.txt", Score: 0.4},
		{DocumentPath: "/x/b.pdf", Chunk: vectorstore.Chunk{Page: 2}, Score: 0.3},
	})
	assert.Equal(t, []string{"notes.txt (0.50)", "b.pdf p.2 (0.30)"}, labels)
}
