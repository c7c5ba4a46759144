package documents

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dream-ai/ragbook/internal/embeddings"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

// DefaultBatchSize is the number of chunks per embedding request when none
// is configured.
const DefaultBatchSize = 16

// Result describes what happened to one file
type Result struct {
	Document *vectorstore.Document
	Chunks   int
	Skipped  bool
}

// Summary totals a ProcessPaths run
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Chunks    int
}

// Processor handles document processing with incremental updates
type Processor struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	splitter  *Splitter
	workers   int
	batchSize int
}

// NewProcessor creates a document processor that embeds batchSize chunks per
// request with up to workers requests in flight.
func NewProcessor(store vectorstore.Store, embedder embeddings.Embedder, splitter *Splitter, workers, batchSize int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Processor{
		store:     store,
		embedder:  embedder,
		splitter:  splitter,
		workers:   workers,
		batchSize: batchSize,
	}
}

// ProcessDocument processes a document if it's new or changed
func (p *Processor) ProcessDocument(ctx context.Context, filePath string) (*Result, error) {
	parser, err := ParserFor(filePath)
	if err != nil {
		return nil, err
	}

	hash, err := computeFileHash(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	existing, err := p.store.FindDocumentByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil {
		slog.Debug("document already ingested", "path", filePath, "id", existing.ID)
		return &Result{Document: existing, Chunks: existing.ChunkCount, Skipped: true}, nil
	}

	parsed, err := parser.Parse(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	pieces, err := p.splitter.SplitDocument(parsed)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		absPath = filePath
	}
	doc := &vectorstore.Document{
		ID:       uuid.New(),
		Path:     absPath,
		Hash:     hash,
		FileType: parsed.FileType,
	}

	if len(pieces) == 0 {
		slog.Warn("document has no extractable text", "path", filePath)
		return &Result{Document: doc}, nil
	}

	vectors, err := p.embedChunks(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	if err := p.store.Init(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Index:      i,
			Page:       piece.Page,
			Content:    piece.Content,
			Embedding:  vectors[i],
		}
	}
	doc.ChunkCount = len(chunks)

	if err := p.store.Upsert(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	slog.Info("ingested document", "path", filePath, "chunks", len(chunks), "id", doc.ID)
	return &Result{Document: doc, Chunks: len(chunks)}, nil
}

// embedChunks embeds in batches across p.workers goroutines; vectors keep
// the order of pieces.
func (p *Processor) embedChunks(ctx context.Context, pieces []PageChunk) ([][]float32, error) {
	vectors := make([][]float32, len(pieces))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for start := 0; start < len(pieces); start += p.batchSize {
		end := min(start+p.batchSize, len(pieces))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, piece := range pieces[start:end] {
				texts = append(texts, piece.Content)
			}
			vecs, err := p.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, want %d", vectorstore.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, nil
}

// ProcessPaths ingests every supported file named by paths, expanding
// directories and glob patterns. Failures are logged and counted.
func (p *Processor) ProcessPaths(ctx context.Context, paths []string) (Summary, error) {
	var sum Summary

	files, err := ExpandPaths(paths)
	if err != nil {
		return sum, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := p.ProcessDocument(ctx, f)
		if err != nil {
			slog.Warn("failed to ingest document", "path", f, "error", err)
			sum.Failed++
			continue
		}
		if res.Skipped {
			sum.Skipped++
			continue
		}
		sum.Processed++
		sum.Chunks += res.Chunks
	}
	return sum, nil
}

// ExpandPaths resolves globs and walks directories for supported files.
// Explicit file arguments are returned as given.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range paths {
		matches := []string{arg}
		if strings.ContainsAny(arg, "*?[") {
			m, err := filepath.Glob(arg)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
			}
			matches = m
		}

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", m, err)
			}
			if !info.IsDir() {
				add(m)
				continue
			}

			var found []string
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && Supported(path) {
					found = append(found, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", m, err)
			}
			sort.Strings(found)
			for _, f := range found {
				add(f)
			}
		}
	}
	return out, nil
}

// computeFileHash computes SHA256 hash of a file
func computeFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
