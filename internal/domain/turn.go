package domain

// State is the slice of orchestration state a tool reads.
type State struct {
	UserInput string         `json:"user_input"`
	UIContext map[string]any `json:"ui_context,omitempty"`
}

// Outcome is the typed result of a tool invocation.
type Outcome string

const (
	// OutcomeOK means the tool ran to completion.
	OutcomeOK Outcome = "ok"
	// OutcomeSkipped means the input was trivially empty and nothing was called.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDegraded means a failure was absorbed into an empty result.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed means the failure is returned to the caller.
	OutcomeFailed Outcome = "failed"
)

// Diagnostics records provenance of a retrieval result.
type Diagnostics struct {
	Source     string `json:"source"`
	QueryText  string `json:"query_text,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
	NumResults *int   `json:"num_results,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Patch is the state update a tool returns to the graph.
type Patch struct {
	Comments []ResultEntry `json:"comments"`
	Metadata Diagnostics   `json:"metadata"`
	Outcome  Outcome       `json:"-"`
}

// Count returns a pointer suitable for Diagnostics.NumResults.
func Count(n int) *int { return &n }
