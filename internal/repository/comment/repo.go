package comment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/logger"
)

// store is the consumer interface for comment search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	Source() string
}

// Repo is the vector search gateway over stored comment embeddings.
type Repo struct {
	store      store
	dimensions int
}

// New creates a comment repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// WithDimensions rejects query vectors of any other length before they reach the store.
func (r *Repo) WithDimensions(dims int) *Repo {
	r.dimensions = dims
	return r
}

// Source returns the provenance tag of the backing store.
func (r *Repo) Source() string {
	return r.store.Source()
}

// SearchComments returns at most limit candidates ordered by ascending distance.
// An empty store yields an empty slice. Every failure is a *domain.StoreAccessError.
func (r *Repo) SearchComments(
	ctx context.Context, vector []float32, limit int,
) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, domain.NewStoreAccessError("search comments", fmt.Errorf("%w: %d", domain.ErrInvalidLimit, limit))
	}
	if err := domain.CheckDimensions(vector, r.dimensions); err != nil {
		return nil, domain.NewStoreAccessError("search comments", err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{Vector: vector, K: limit})
	if err != nil {
		return nil, domain.NewStoreAccessError("search comments", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return []domain.Candidate{}, nil
	}

	log := logger.FromContext(ctx)
	out := make([]domain.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, domain.Candidate{
			CommentID: e.CommentID,
			Distance:  max(0, e.Distance),
			Metadata:  decodeMetadata(e, log),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].CommentID < out[j].CommentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// decodeMetadata parses the stored JSON object. null, empty or malformed
// metadata yields nil so one bad row does not fail the whole query.
func decodeMetadata(e db.SearchEntry, log *zap.Logger) map[string]any {
	if len(e.Metadata) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Metadata, &m); err != nil {
		log.Warn("Dropping malformed comment metadata",
			zap.String("comment_id", e.CommentID),
			zap.Error(err),
		)
		return nil
	}
	return m
}
