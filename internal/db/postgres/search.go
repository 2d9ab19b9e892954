package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
)

// SearchKNN runs an exact or index-backed nearest-neighbour query inside a
// read-only transaction on a dedicated connection.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (_ *db.SearchResult, err error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.efSearch > 0 {
		// SET LOCAL does not accept bind parameters.
		if _, err = tx.ExecContext(ctx, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(s.efSearch)); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
	}

	rows, err := tx.QueryContext(ctx, s.knnQuery(), pgvector.NewVector(q.Vector), q.K)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: classify(err)}
	}
	defer rows.Close()

	res := &db.SearchResult{}
	for rows.Next() {
		var (
			entry db.SearchEntry
			meta  []byte
		)
		if err = rows.Scan(&entry.CommentID, &meta, &entry.Distance); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		entry.Metadata = meta
		res.Entries = append(res.Entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: classify(err)}
	}
	if err = tx.Commit(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return res, nil
}

// CountComments returns the number of stored comment rows.
func (s *Store) CountComments(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+s.table)
	if err := row.Scan(&n); err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	return n, nil
}

// SampleComment returns an arbitrary stored row, or db.ErrNoRows for an empty table.
func (s *Store) SampleComment(ctx context.Context) (*db.Row, error) {
	var (
		r    db.Row
		meta []byte
		vec  pgvector.Vector
	)
	row := s.db.QueryRowContext(ctx,
		"SELECT comment_id, metadata, embedding FROM "+s.table+" LIMIT 1")
	if err := row.Scan(&r.CommentID, &meta, &vec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNoRows
		}
		return nil, &db.Error{Op: db.OpSample, Err: err}
	}
	r.Metadata = meta
	r.Vector = vec.Slice()
	return &r, nil
}

// knnQuery orders by the bare distance expression so an HNSW or IVFFlat index
// can serve it. Ties are broken by the gateway.
func (s *Store) knnQuery() string {
	dist := "embedding " + s.operator + " $1::vector"
	return "SELECT comment_id, metadata, " + dist + " AS distance" +
		" FROM " + s.table +
		" ORDER BY " + dist +
		" LIMIT $2"
}

// classify tags pgvector dimension errors so callers can match domain.ErrVectorDimMismatch.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.Contains(pqErr.Message, "different vector dimensions") {
		return fmt.Errorf("%w: %w", domain.ErrVectorDimMismatch, err)
	}
	return err
}
