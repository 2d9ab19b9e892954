package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/topoagent/internal/db"
)

// Compile-time checks: Store implements db.Store and db.KVStore.
var (
	_ db.Store   = (*Store)(nil)
	_ db.KVStore = (*Store)(nil)
)

// SourceTag is the provenance tag reported for FT.SEARCH results.
const SourceTag = "comment_rag_ftsearch"

// Config holds connection parameters for a Valkey/Redis store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	IndexName string // FT index over comment hashes
	KeyPrefix string // prefix of comment hash keys, e.g. "topo:comment:"
}

// Store implements db.Store via rueidis for Valkey with valkey-search or Redis 8+.
// Comments are hashes holding comment_id, metadata (JSON) and embedding (FLOAT32 blob).
type Store struct {
	client    rueidis.Client
	indexName string
	keyPrefix string
}

// NewStore creates a Valkey/Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}

	return newStore(client, cfg), nil
}

func newStore(client rueidis.Client, cfg Config) *Store {
	if cfg.IndexName == "" {
		cfg.IndexName = "topo:comments:idx"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "topo:comment:"
	}
	return &Store{client: client, indexName: cfg.IndexName, keyPrefix: cfg.KeyPrefix}
}

// Source implements db.CommentSearcher.
func (s *Store) Source() string { return SourceTag }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
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

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
