package db

import "encoding/json"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	Vector []float32
	K      int
}

// SearchResult is the output of a search operation, ordered by ascending distance.
type SearchResult struct {
	Entries []SearchEntry
}

// SearchEntry is a single comment hit from a search.
// Metadata is the raw JSON object stored alongside the embedding.
type SearchEntry struct {
	CommentID string
	Distance  float64
	Metadata  json.RawMessage
}

// Row is a stored comment row returned by inspection queries.
type Row struct {
	CommentID string
	Metadata  json.RawMessage
	Vector    []float32
}
