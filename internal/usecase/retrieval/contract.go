package retrieval

import (
	"context"

	"github.com/kailas-cloud/topoagent/internal/domain"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Gateway finds the nearest stored comments for a query vector.
type Gateway interface {
	SearchComments(ctx context.Context, vector []float32, limit int) ([]domain.Candidate, error)
	Source() string
}
