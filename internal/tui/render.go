package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dream-ai/ragbook/internal/vectorstore"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	assistantStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	accentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boldStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	messagesBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return mutedStyle.Render("Ask a question about your documents.")
	}

	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2))
	var lines []string
	for i, msg := range m.messages {
		pending := m.loading && i == len(m.messages)-1
		switch msg.Role {
		case "user":
			lines = append(lines, userStyle.Render("You: ")+wrap.Render(msg.Content))
		default:
			body := formatMarkdown(msg.Content)
			switch {
			case pending:
				body = m.spinner.View() + " " + mutedStyle.Render("Thinking...")
			case msg.Err:
				body = errorStyle.Render(msg.Content)
			}
			lines = append(lines, assistantStyle.Render("AI: ")+wrap.Render(body))

			if len(msg.Sources) > 0 {
				lines = append(lines, accentStyle.Render("Sources:"))
				for _, s := range msg.Sources {
					lines = append(lines, mutedStyle.Render("  - "+s))
				}
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// formatMarkdown styles headers, bullets and **bold** spans.
func formatMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			out = append(out, boldStyle.Render(strings.TrimSpace(strings.TrimLeft(trimmed, "#"))))
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			out = append(out, "  • "+processBold(trimmed[2:]))
		default:
			out = append(out, processBold(line))
		}
	}
	return strings.Join(out, "\n")
}

// processBold renders **bold** spans; an unclosed marker is kept literally.
func processBold(text string) string {
	parts := strings.Split(text, "**")
	if len(parts)%2 == 0 {
		return text
	}
	var sb strings.Builder
	for i, p := range parts {
		if i%2 == 1 {
			sb.WriteString(boldStyle.Render(p))
		} else {
			sb.WriteString(p)
		}
	}
	return sb.String()
}

// sourceLabels lists each cited file and page once, in retrieval order.
func sourceLabels(results []vectorstore.SearchResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		label := filepath.Base(r.DocumentPath)
		if r.Chunk.Page > 0 {
			label += fmt.Sprintf(" p.%d", r.Chunk.Page)
		}
		if !seen[label] {
			seen[label] = true
			out = append(out, fmt.Sprintf("%s (%.2f)", label, r.Score))
		}
	}
	return out
}

func documentList(docs []vectorstore.Document) string {
	if len(docs) == 0 {
		return "No documents ingested yet. Run `ragbook ingest <paths>`."
	}
	lines := []string{fmt.Sprintf("%d documents:", len(docs))}
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("- %s (%d chunks, %s)", filepath.Base(d.Path), d.ChunkCount, d.FileType))
	}
	return strings.Join(lines, "\n")
}
