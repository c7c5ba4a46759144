// Package documents loads source files, splits them into chunks and feeds
// them through an embedder into a vector store.
package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrUnsupportedFileType is returned for files no parser handles.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// Page is the text of one page; Number starts at 1.
type Page struct {
	Number int
	Text   string
}

// ParsedDocument contains the text extracted from a document
type ParsedDocument struct {
	FileType string
	Pages    []Page
}

// Text joins all pages with blank lines
func (d *ParsedDocument) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Parser interface for document parsing
type Parser interface {
	Parse(ctx context.Context, filePath string) (*ParsedDocument, error)
}

// ParserFor selects a parser by file extension
func ParserFor(filePath string) (Parser, error) {
	switch FileType(filePath) {
	case "pdf":
		return &PDFParser{}, nil
	case "epub":
		return &EPUBParser{}, nil
	case "txt", "md":
		return &TextParser{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(filePath))
}

// FileType returns the lower-case extension without the dot
func FileType(filePath string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
}

// Supported reports whether a parser exists for filePath
func Supported(filePath string) bool {
	_, err := ParserFor(filePath)
	return err == nil
}

// PDFParser parses PDF files
type PDFParser struct{}

// Parse extracts per-page text from a PDF file
func (p *PDFParser) Parse(ctx context.Context, filePath string) (*ParsedDocument, error) {
	pages, err := fitzPages(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &ParsedDocument{FileType: "pdf", Pages: pages}, nil
}

// EPUBParser parses EPUB files using go-fitz (which supports EPUB)
type EPUBParser struct{}

// Parse extracts per-page text from an EPUB file
func (p *EPUBParser) Parse(ctx context.Context, filePath string) (*ParsedDocument, error) {
	pages, err := fitzPages(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	return &ParsedDocument{FileType: "epub", Pages: pages}, nil
}

func fitzPages(ctx context.Context, filePath string) ([]Page, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	var pages []Page
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

// TextParser reads plain text and markdown files as a single page
type TextParser struct{}

// Parse reads the whole file
func (p *TextParser) Parse(_ context.Context, filePath string) (*ParsedDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	doc := &ParsedDocument{FileType: FileType(filePath)}
	if strings.TrimSpace(string(data)) != "" {
		doc.Pages = []Page{{Number: 1, Text: string(data)}}
	}
	return doc, nil
}
