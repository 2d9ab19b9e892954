package comment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
)

func TestSearchComments_ShapesCandidates(t *testing.T) {
	ms := &mockStore{searchFn: resultOf(
		db.SearchEntry{CommentID: "c1", Distance: 0.12, Metadata: json.RawMessage(`{"site":"A","layer":"L2"}`)},
		db.SearchEntry{CommentID: "c2", Distance: 0.45, Metadata: json.RawMessage(`{"site":"B"}`)},
		db.SearchEntry{CommentID: "c3", Distance: 0.91},
	)}
	repo := New(ms)

	got, err := repo.SearchComments(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.lastK != 5 {
		t.Errorf("expected K=5 passed to store, got %d", ms.lastK)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].CommentID != "c1" || got[0].Metadata["layer"] != "L2" {
		t.Errorf("unexpected first candidate: %+v", got[0])
	}
	if got[2].Metadata != nil {
		t.Errorf("expected nil metadata for c3, got %v", got[2].Metadata)
	}
}

func TestSearchComments_OrdersAndTruncates(t *testing.T) {
	ms := &mockStore{searchFn: resultOf(
		db.SearchEntry{CommentID: "far", Distance: 0.9},
		db.SearchEntry{CommentID: "near", Distance: 0.1},
		db.SearchEntry{CommentID: "tie-a", Distance: 0.5},
		db.SearchEntry{CommentID: "tie-b", Distance: 0.5},
	)}
	repo := New(ms)

	got, err := repo.SearchComments(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"near", "tie-a", "tie-b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].CommentID != want[i] {
			t.Errorf("position %d = %q, want %q", i, got[i].CommentID, want[i])
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("distances not ascending at %d", i)
		}
	}
}

func TestSearchComments_BreaksTiesByCommentID(t *testing.T) {
	ms := &mockStore{searchFn: resultOf(
		db.SearchEntry{CommentID: "c-b", Distance: 0.3},
		db.SearchEntry{CommentID: "c-c", Distance: 0.3},
		db.SearchEntry{CommentID: "c-a", Distance: 0.3},
		db.SearchEntry{CommentID: "c-0", Distance: 0.1},
	)}
	repo := New(ms)

	got, err := repo.SearchComments(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"c-0", "c-a", "c-b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].CommentID != want[i] {
			t.Errorf("position %d = %q, want %q", i, got[i].CommentID, want[i])
		}
	}
}

func TestSearchComments_EmptyStore(t *testing.T) {
	repo := New(&mockStore{})

	got, err := repo.SearchComments(context.Background(), []float32{1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestSearchComments_ClampsNegativeDistance(t *testing.T) {
	repo := New(&mockStore{searchFn: resultOf(db.SearchEntry{CommentID: "c", Distance: -1e-9})})

	got, err := repo.SearchComments(context.Background(), []float32{1}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Distance != 0 {
		t.Errorf("expected clamped distance 0, got %v", got[0].Distance)
	}
}

func TestSearchComments_MalformedMetadata(t *testing.T) {
	repo := New(&mockStore{searchFn: resultOf(
		db.SearchEntry{CommentID: "c", Distance: 0.2, Metadata: json.RawMessage(`[1,2]`)},
	)})

	got, err := repo.SearchComments(context.Background(), []float32{1}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Metadata != nil {
		t.Errorf("expected nil metadata, got %v", got[0].Metadata)
	}
}

func TestSearchComments_StoreError(t *testing.T) {
	cause := &db.Error{Op: db.OpConnect, Err: errors.New("connection refused")}
	repo := New(&mockStore{searchFn: func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, cause
	}})

	_, err := repo.SearchComments(context.Background(), []float32{1}, 5)
	if !errors.Is(err, domain.ErrStoreAccess) {
		t.Fatalf("expected ErrStoreAccess, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause preserved, got %v", err)
	}
}

func TestSearchComments_DimensionMismatch(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms).WithDimensions(768)

	_, err := repo.SearchComments(context.Background(), make([]float32, 384), 5)
	if !errors.Is(err, domain.ErrStoreAccess) || !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected store access dimension mismatch, got %v", err)
	}
	if ms.calls != 0 {
		t.Errorf("expected no store call, got %d", ms.calls)
	}
}

func TestSearchComments_InvalidLimit(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms)

	_, err := repo.SearchComments(context.Background(), []float32{1}, 0)
	if !errors.Is(err, domain.ErrInvalidLimit) || !errors.Is(err, domain.ErrStoreAccess) {
		t.Fatalf("expected invalid limit store error, got %v", err)
	}
	if ms.calls != 0 {
		t.Errorf("expected no store call, got %d", ms.calls)
	}
}
