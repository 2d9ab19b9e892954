// Package orchestrator runs tools for one conversation turn and merges their patches.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/logger"
	"github.com/kailas-cloud/topoagent/internal/metrics"
)

// ToolsNodeName is the graph node that fans out to tools.
const ToolsNodeName = "tools"

// Tool is one capability invoked for a turn.
type Tool interface {
	Name() string
	Run(ctx context.Context, state domain.State) (domain.Patch, error)
}

// Result is the outcome of one tool within a turn.
type Result struct {
	Tool  string
	Patch domain.Patch
}

// ToolNode runs all tools concurrently, instrumenting each tool and the node itself.
type ToolNode struct {
	tools    []Tool
	recorder metrics.Recorder
}

// NewToolNode creates a tool node. rec may be nil.
func NewToolNode(rec metrics.Recorder, tools ...Tool) *ToolNode {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &ToolNode{tools: tools, recorder: rec}
}

// Run invokes every tool with state. The first tool error fails the node and
// cancels the remaining tools. Results are returned in tool registration order.
func (n *ToolNode) Run(ctx context.Context, state domain.State) ([]Result, error) {
	return metrics.Instrument(ctx, n.recorder, metrics.FamilyNode, ToolsNodeName,
		func(ctx context.Context) ([]Result, error) {
			return n.runTools(ctx, state)
		})
}

func (n *ToolNode) runTools(ctx context.Context, state domain.State) ([]Result, error) {
	results := make([]Result, len(n.tools))
	g, gctx := errgroup.WithContext(ctx)

	for i, tool := range n.tools {
		g.Go(func() error {
			patch, err := metrics.Instrument(gctx, n.recorder, metrics.FamilyTool, tool.Name(),
				func(ctx context.Context) (domain.Patch, error) {
					return tool.Run(ctx, state)
				})
			if err != nil {
				return fmt.Errorf("tool %s: %w", tool.Name(), err)
			}
			results[i] = Result{Tool: tool.Name(), Patch: patch}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.FromContext(ctx).Error("Tool node failed", zap.Error(err))
		return nil, err //nolint:wrapcheck // already annotated with the tool name
	}
	return results, nil
}

// Find returns the patch produced by the named tool.
func Find(results []Result, tool string) (domain.Patch, bool) {
	for _, r := range results {
		if r.Tool == tool {
			return r.Patch, true
		}
	}
	return domain.Patch{}, false
}
