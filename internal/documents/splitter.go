package documents

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// PageChunk is a piece of a page ready for embedding.
type PageChunk struct {
	Page    int
	Content string
}

// Splitter cuts text into overlapping chunks measured in characters
type Splitter struct {
	rc textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter; overlap must be smaller than size
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return &Splitter{
		rc: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Split returns the chunks of text; blank text yields none
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := s.rc.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// SplitDocument splits each page separately so every chunk keeps its page
func (s *Splitter) SplitDocument(doc *ParsedDocument) ([]PageChunk, error) {
	var chunks []PageChunk
	for _, page := range doc.Pages {
		parts, err := s.Split(page.Text)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Number, err)
		}
		for _, p := range parts {
			chunks = append(chunks, PageChunk{Page: page.Number, Content: p})
		}
	}
	return chunks, nil
}
