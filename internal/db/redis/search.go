package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
)

// Hash field names of a stored comment.
const (
	fieldCommentID = "comment_id"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"
	fieldDistance  = "distance"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// The engine reports raw distances (cosine or L2, per the index definition).
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB AS %s]", q.K, fieldEmbedding, fieldDistance)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(
		s.indexName, queryStr,
		"RETURN", "3", fieldCommentID, fieldMetadata, fieldDistance,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: classify(err)}
	}

	res, err := s.parseKNNResult(raw)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) > q.K {
		res.Entries = res.Entries[:q.K]
	}
	return res, nil
}

// CountComments returns the number of indexed comments via FT.SEARCH with LIMIT 0 0.
func (s *Store) CountComments(ctx context.Context) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(s.indexName, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// SampleComment returns one indexed comment, or db.ErrNoRows when the index is empty.
func (s *Store) SampleComment(ctx context.Context) (*db.Row, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(
		s.indexName, "*",
		"RETURN", "3", fieldCommentID, fieldMetadata, fieldEmbedding,
		"LIMIT", "0", "1",
	).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSample, Err: err}
	}
	if len(raw) < 3 {
		return nil, db.ErrNoRows
	}

	key, err := raw[1].ToString()
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	fields, err := raw[2].ToArray()
	if err != nil {
		return nil, fmt.Errorf("parse fields: %w", err)
	}
	m := parseFieldPairs(fields)

	row := &db.Row{
		CommentID: s.commentID(key, m),
		Vector:    bytesToVector(m[fieldEmbedding]),
	}
	if meta := m[fieldMetadata]; meta != "" {
		row.Metadata = json.RawMessage(meta)
	}
	return row, nil
}

// --- Result parsing ---

func (s *Store) parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(fields)

		dist, err := strconv.ParseFloat(m[fieldDistance], 64)
		if err != nil {
			return nil, fmt.Errorf("parse distance for %s: %w", key, err)
		}

		entry := db.SearchEntry{
			CommentID: s.commentID(key, m),
			Distance:  max(0, dist),
		}
		if meta := m[fieldMetadata]; meta != "" {
			entry.Metadata = json.RawMessage(meta)
		}
		entries = append(entries, entry)
	}

	// valkey-search has no SORTBY on KNN aliases; order here.
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Distance != entries[b].Distance {
			return entries[a].Distance < entries[b].Distance
		}
		return entries[a].CommentID < entries[b].CommentID
	})

	return &db.SearchResult{Entries: entries}, nil
}

// commentID prefers the stored comment_id field and falls back to the key suffix.
func (s *Store) commentID(key string, fields map[string]string) string {
	if id := fields[fieldCommentID]; id != "" {
		return id
	}
	return strings.TrimPrefix(key, s.keyPrefix)
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// classify tags vector size errors so callers can match domain.ErrVectorDimMismatch.
func classify(err error) error {
	if isRedisErr(err, "dimension") || isRedisErr(err, "blob size") {
		return fmt.Errorf("%w: %w", domain.ErrVectorDimMismatch, err)
	}
	return err
}

// isRedisErr checks if err is a server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a FLOAT32 blob; malformed blobs yield nil.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
