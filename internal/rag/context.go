package rag

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const truncationMarker = "\n\n[Context truncated...]"

// ContextBuilder builds context for LLM from retrieval results
type ContextBuilder struct {
	maxTokens int
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(maxTokens int) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &ContextBuilder{maxTokens: maxTokens}
}

// BuildContext joins the retrieved excerpts, labelled with their source and
// page, and cuts the result to roughly maxTokens (4 characters per token).
func (cb *ContextBuilder) BuildContext(result *RetrievalResult) string {
	if result == nil || len(result.Chunks) == 0 {
		return ""
	}

	var parts []string
	for i, c := range result.Chunks {
		label := fmt.Sprintf("[%d] %s", i+1, filepath.Base(c.DocumentPath))
		if c.Chunk.Page > 0 {
			label += fmt.Sprintf(", page %d", c.Chunk.Page)
		}
		parts = append(parts, label, strings.TrimSpace(c.Chunk.Content), "")
	}
	context := strings.Join(parts, "\n")

	maxChars := cb.maxTokens * 4
	if runes := []rune(context); len(runes) > maxChars {
		context = string(runes[:maxChars]) + truncationMarker
	}
	return context
}

// BuildPrompt creates a complete prompt with context and user query
func (cb *ContextBuilder) BuildPrompt(context, userQuery string) string {
	var parts []string

	parts = append(parts, "Answer the question using only the context below.")
	parts = append(parts, "If the context does not contain the answer, say that you don't know.")
	parts = append(parts, "Cite excerpts by their number, for example [2].")
	parts = append(parts, "")

	if context != "" {
		parts = append(parts, "Context:")
		parts = append(parts, context)
		parts = append(parts, "")
	}

	parts = append(parts, "Question: "+userQuery)
	parts = append(parts, "Answer:")

	return strings.Join(parts, "\n")
}

// ChunkIDs extracts chunk IDs from a retrieval result
func ChunkIDs(result *RetrievalResult) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		ids = append(ids, c.Chunk.ID)
	}
	return ids
}
