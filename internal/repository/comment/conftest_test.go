package comment

import (
	"context"

	"github.com/kailas-cloud/topoagent/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchFn func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	calls    int
	lastK    int
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.calls++
	m.lastK = q.K
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) Source() string { return "mock" }

func resultOf(entries ...db.SearchEntry) func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
	return func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Entries: entries}, nil
	}
}
