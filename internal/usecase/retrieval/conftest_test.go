package retrieval

import (
	"context"
	"encoding/json"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
)

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
	texts []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	m.texts = append(m.texts, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockGateway struct {
	candidates []domain.Candidate
	err        error
	calls      int
	lastLimit  int
	lastVector []float32
}

func (m *mockGateway) SearchComments(_ context.Context, vector []float32, limit int) ([]domain.Candidate, error) {
	m.calls++
	m.lastLimit = limit
	m.lastVector = vector
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func (m *mockGateway) Source() string { return "comment_rag_pgvector" }

// fakeStore is a db-level store for end-to-end tests through comment.Repo.
type fakeStore struct {
	entries []db.SearchEntry
	err     error
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.entries
	if len(out) > q.K {
		out = out[:q.K]
	}
	return &db.SearchResult{Entries: out}, nil
}

func (f *fakeStore) Source() string { return "comment_rag_pgvector" }

func vector(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

func rawJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
