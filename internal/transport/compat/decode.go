package compat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/topoagent/internal/domain"
)

// embeddingResponse covers both accepted payloads:
//
//	shape A: {"data": [{"embedding": [...]}, ...], "usage": {...}}
//	shape B: {"embedding": [...]}
type embeddingResponse struct {
	Data      []embeddingItem `json:"data"`
	Embedding json.RawMessage `json:"embedding"`
	Usage     *usage          `json:"usage"`
}

type embeddingItem struct {
	Embedding json.RawMessage `json:"embedding"`
}

type usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// decodeEmbedding tries shape A, then shape B. Anything else is ErrUnexpectedResponseShape.
func decodeEmbedding(body []byte) (domain.EmbeddingResult, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrUnexpectedResponseShape, err)
	}

	var raw json.RawMessage
	switch {
	case len(resp.Data) > 0:
		if isAbsent(resp.Data[0].Embedding) {
			return domain.EmbeddingResult{}, fmt.Errorf("%w: data[0] has no embedding", domain.ErrUnexpectedResponseShape)
		}
		raw = resp.Data[0].Embedding
	case !isAbsent(resp.Embedding):
		raw = resp.Embedding
	default:
		return domain.EmbeddingResult{}, fmt.Errorf("%w: no data or embedding field", domain.ErrUnexpectedResponseShape)
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: embedding: %w", domain.ErrUnexpectedResponseShape, err)
	}
	if len(vec) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty embedding", domain.ErrUnexpectedResponseShape)
	}

	res := domain.EmbeddingResult{Embedding: vec}
	if resp.Usage != nil {
		res.PromptTokens = resp.Usage.PromptTokens
		res.TotalTokens = resp.Usage.TotalTokens
	}
	return res, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// errorDetail pulls a readable message out of an error body.
// Handles {"error": "..."}, {"error": {"message": "..."}} and {"detail": "..."}.
func errorDetail(body []byte) string {
	var parsed struct {
		Error  json.RawMessage `json:"error"`
		Detail string          `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	if len(parsed.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(parsed.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(parsed.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}
