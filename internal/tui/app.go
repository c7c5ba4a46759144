// Package tui is the interactive chat front-end.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dream-ai/ragbook/internal/rag"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

// Asker answers a question from the ingested documents
type Asker interface {
	Ask(ctx context.Context, query string) (*rag.Answer, error)
}

// Lister lists ingested documents
type Lister interface {
	Documents(ctx context.Context) ([]vectorstore.Document, error)
}

// Run starts the chat in the terminal's alternate screen and blocks until
// the user quits.
func Run(ctx context.Context, asker Asker, docs Lister, model string) error {
	p := tea.NewProgram(New(ctx, asker, docs, model), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}
	return nil
}
