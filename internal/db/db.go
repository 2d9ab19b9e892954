package db

import (
	"context"
	"time"
)

// Store is the comment store facade shared by the pgvector and Valkey backends.
type Store interface {
	Pinger
	CommentSearcher
	CommentInspector
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CommentSearcher runs nearest-neighbour queries over stored comment embeddings.
type CommentSearcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	// Source is the provenance tag reported in retrieval diagnostics.
	Source() string
}

// CommentInspector exposes read-only row inspection for operational tooling.
type CommentInspector interface {
	CountComments(ctx context.Context) (int, error)
	SampleComment(ctx context.Context) (*Row, error)
}

// KVStore provides simple key-value operations (embedding cache).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
