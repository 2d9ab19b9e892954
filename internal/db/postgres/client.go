package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// SourceTag is the provenance tag reported for pgvector results.
const SourceTag = "comment_rag_pgvector"

// Config holds connection parameters for a pgvector store.
type Config struct {
	DSN          string
	Table        string
	Metric       string // cosine (default) or l2
	EFSearch     int    // hnsw.ef_search per query, 0 = server default
	MaxOpenConns int
}

// Store implements db.Store on PostgreSQL with the pgvector extension.
// Each search checks a connection out of the pool and returns it before exiting.
type Store struct {
	db       *sql.DB
	table    string
	operator string
	efSearch int
}

// NewStore opens a lib/pq connection pool. No connection is made until first use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.Table == "" {
		cfg.Table = "comment_embeddings"
	}
	op, err := distanceOperator(cfg.Metric)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &Store{
		db:       sqlDB,
		table:    pq.QuoteIdentifier(cfg.Table),
		operator: op,
		efSearch: cfg.EFSearch,
	}, nil
}

// Source implements db.CommentSearcher.
func (s *Store) Source() string { return SourceTag }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// distanceOperator maps a metric name onto the pgvector distance operator.
func distanceOperator(metric string) (string, error) {
	switch metric {
	case "", domain.MetricCosine:
		return "<=>", nil
	case domain.MetricL2:
		return "<->", nil
	default:
		return "", fmt.Errorf("unsupported distance metric %q", metric)
	}
}
