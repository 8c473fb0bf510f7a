// Package embed provides text embedding clients. The service consumes an
// embedding model over HTTP; it does not implement one.
package embed

import "context"

// Embedder generates fixed-length vector embeddings for text. Implementations
// must be deterministic for identical input within one process lifetime.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
