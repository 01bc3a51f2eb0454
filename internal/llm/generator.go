package llm

import (
	"context"
	"iter"
)

// ContentGenerator is the uniform surface over every backend.
// Implementations are safe for concurrent use.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*ContentResult, error)
	// GenerateContentStream returns a lazy sequence of chunks. Each range over
	// the sequence issues a new request. Stopping the range early releases the
	// underlying transport.
	GenerateContentStream(ctx context.Context, req GenerateRequest) iter.Seq2[*ContentChunk, error]
	CountTokens(ctx context.Context, req CountTokensRequest) (*TokenCount, error)
	EmbedContent(ctx context.Context, req EmbedRequest) (*EmbeddingResult, error)
}

func callModel(configured, override string) string {
	if override != "" {
		return override
	}
	return configured
}
