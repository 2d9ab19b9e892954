package retrieval

import (
	"fmt"

	"github.com/kailas-cloud/topoagent/internal/domain"
)

// Action is what the node does with a failure of a given kind.
type Action string

const (
	// ActionDegrade absorbs the failure into an empty result with a reason.
	ActionDegrade Action = "degrade"
	// ActionPropagate returns the failure to the caller.
	ActionPropagate Action = "propagate"
)

// ParseAction parses a configured action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionDegrade, ActionPropagate:
		return a, nil
	default:
		return "", fmt.Errorf("unknown failure action %q (want degrade or propagate)", s)
	}
}

// Policy maps error kinds to actions. Kinds without an entry propagate.
type Policy map[domain.ErrorKind]Action

// DefaultPolicy degrades on embedding failures and propagates store failures.
func DefaultPolicy() Policy {
	return Policy{
		domain.KindEmbedding: ActionDegrade,
		domain.KindStore:     ActionPropagate,
	}
}

// With returns a copy of p with kind mapped to a.
func (p Policy) With(kind domain.ErrorKind, a Action) Policy {
	out := make(Policy, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[kind] = a
	return out
}

// ActionFor returns the action for kind.
func (p Policy) ActionFor(kind domain.ErrorKind) Action {
	if a, ok := p[kind]; ok {
		return a
	}
	return ActionPropagate
}
