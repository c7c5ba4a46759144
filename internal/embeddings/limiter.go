package embeddings

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped embedder to a fixed request rate.
type Limited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewLimited wraps emb so that at most rps requests are made per second
func NewLimited(emb Embedder, rps float64) *Limited {
	burst := max(1, int(math.Ceil(rps)))
	return &Limited{next: emb, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Model returns the embedding model name
func (l *Limited) Model() string {
	return l.next.Model()
}

// Embed waits for a token and then embeds text
func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Embed(ctx, text)
}

// EmbedBatch counts one token per batch request
func (l *Limited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.EmbedBatch(ctx, texts)
}
