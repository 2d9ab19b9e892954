package domain

import "encoding/json"

// Reserved result entry keys. Metadata never overrides them.
const (
	FieldCommentID = "comment_id"
	FieldDistance  = "distance"
)

// Candidate is a single nearest-neighbour hit from the comment store.
type Candidate struct {
	CommentID string
	Distance  float64
	Metadata  map[string]any
}

// Comment is a stored comment row as seen by inspection tooling.
type Comment struct {
	CommentID string
	Metadata  map[string]any
	Vector    []float32
}

// ResultEntry is one retrieved comment returned to the orchestration state.
type ResultEntry struct {
	CommentID string
	Distance  float64
	Metadata  map[string]any
}

// NewResultEntry shapes a search candidate into a result entry.
func NewResultEntry(c Candidate) ResultEntry {
	return ResultEntry{
		CommentID: c.CommentID,
		Distance:  c.Distance,
		Metadata:  c.Metadata,
	}
}

// Flatten returns the entry as a single map with metadata spread at the top level.
// comment_id and distance always come from the fixed fields.
func (e ResultEntry) Flatten() map[string]any {
	out := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		out[k] = v
	}
	out[FieldCommentID] = e.CommentID
	out[FieldDistance] = e.Distance
	return out
}

// MarshalJSON encodes the flattened form.
func (e ResultEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Flatten())
}

// UnmarshalJSON decodes the flattened form back into fixed fields and metadata.
func (e *ResultEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err //nolint:wrapcheck // json.Unmarshaler contract
	}
	*e = ResultEntry{}
	if id, ok := raw[FieldCommentID].(string); ok {
		e.CommentID = id
	}
	if d, ok := raw[FieldDistance].(float64); ok {
		e.Distance = d
	}
	delete(raw, FieldCommentID)
	delete(raw, FieldDistance)
	if len(raw) > 0 {
		e.Metadata = raw
	}
	return nil
}
