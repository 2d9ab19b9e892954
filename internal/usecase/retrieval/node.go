// Package retrieval implements the semantic comment retrieval tool: embed the
// user input, search the comment store, shape the hits into a state patch.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/logger"
)

// ToolName identifies the node in metrics and in skip/failure diagnostics.
const ToolName = "comment_tool"

// DefaultTopK is the number of comments requested when none is configured.
const DefaultTopK = 5

// Reason prefixes recorded in Diagnostics.Reason.
const (
	ReasonEmptyInput      = "empty user_input"
	ReasonEmbeddingFailed = "embedding_failed"
	ReasonSearchFailed    = "search_failed"
)

// Node is the retrieval tool. It holds no per-call state and is safe for concurrent use.
type Node struct {
	embed   Embedder
	gateway Gateway
	topK    int
	policy  Policy
}

// Option configures a Node.
type Option func(*Node)

// WithTopK sets the number of comments requested per query.
func WithTopK(k int) Option {
	return func(n *Node) {
		if k > 0 {
			n.topK = k
		}
	}
}

// WithPolicy replaces the failure policy.
func WithPolicy(p Policy) Option {
	return func(n *Node) {
		if p != nil {
			n.policy = p
		}
	}
}

// New creates a retrieval node.
func New(embed Embedder, gateway Gateway, opts ...Option) *Node {
	n := &Node{
		embed:   embed,
		gateway: gateway,
		topK:    DefaultTopK,
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements orchestrator.Tool.
func (n *Node) Name() string { return ToolName }

// TopK returns the configured result bound.
func (n *Node) TopK() int { return n.topK }

// Run retrieves comments relevant to state.UserInput.
//
// Empty or whitespace-only input is skipped without any call. Failures are
// handled per the node's Policy: a degraded failure yields an empty result and
// a nil error, a propagated one yields an OutcomeFailed patch and the error.
func (n *Node) Run(ctx context.Context, state domain.State) (domain.Patch, error) {
	log := logger.FromContext(ctx).With(zap.String("tool", ToolName))
	query := state.UserInput

	if strings.TrimSpace(query) == "" {
		log.Debug("Skipping comment retrieval: empty input")
		return domain.Patch{
			Comments: []domain.ResultEntry{},
			Metadata: domain.Diagnostics{Source: ToolName, Reason: ReasonEmptyInput},
			Outcome:  domain.OutcomeSkipped,
		}, nil
	}

	emb, err := n.embed.Embed(ctx, query)
	if err != nil {
		return n.fail(log, n.kindOf(ctx, err, domain.KindEmbedding), ReasonEmbeddingFailed, err)
	}

	candidates, err := n.gateway.SearchComments(ctx, emb.Embedding, n.topK)
	if err != nil {
		return n.fail(log, n.kindOf(ctx, err, domain.KindStore), ReasonSearchFailed, err)
	}

	entries := make([]domain.ResultEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, domain.NewResultEntry(c))
	}

	log.Debug("Comment retrieval completed",
		zap.Int("top_k", n.topK),
		zap.Int("num_results", len(entries)),
	)

	return domain.Patch{
		Comments: entries,
		Metadata: domain.Diagnostics{
			Source:     n.gateway.Source(),
			QueryText:  query,
			TopK:       n.topK,
			NumResults: domain.Count(len(entries)),
		},
		Outcome: domain.OutcomeOK,
	}, nil
}

// kindOf classifies err. Once the caller's context is done the failure is
// KindUnknown whatever the lower layers wrapped it in, so a cancelled turn is
// never degraded. Otherwise unclassified failures belong to the step.
func (n *Node) kindOf(ctx context.Context, err error, step domain.ErrorKind) domain.ErrorKind {
	if ctx.Err() != nil {
		return domain.KindUnknown
	}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return kind
	}
	return step
}

func (n *Node) fail(log *zap.Logger, kind domain.ErrorKind, reason string, err error) (domain.Patch, error) {
	if n.policy.ActionFor(kind) == ActionDegrade {
		log.Warn("Comment retrieval degraded",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return domain.Patch{
			Comments: []domain.ResultEntry{},
			Metadata: domain.Diagnostics{Source: ToolName, Reason: reason + ": " + err.Error()},
			Outcome:  domain.OutcomeDegraded,
		}, nil
	}

	log.Error("Comment retrieval failed",
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return domain.Patch{
		Comments: []domain.ResultEntry{},
		Metadata: domain.Diagnostics{Source: ToolName, Reason: reason + ": " + err.Error()},
		Outcome:  domain.OutcomeFailed,
	}, fmt.Errorf("%s: %w", reason, err)
}
