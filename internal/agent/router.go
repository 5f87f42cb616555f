// ABOUTME: Round-robin agent that rotates turns across several backends
// ABOUTME: Selection is lock-free; each turn goes to exactly one backend

package agent

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNoAgentsAvailable indicates a RoundRobin was built without backends.
var ErrNoAgentsAvailable = errors.New("no agents available")

// RoundRobin is an Agent that hands each turn to the next backend in turn.
type RoundRobin struct {
	agents  []Agent
	current atomic.Uint64
}

// NewRoundRobin creates a RoundRobin over agents.
func NewRoundRobin(agents ...Agent) (*RoundRobin, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgentsAvailable
	}
	return &RoundRobin{agents: agents}, nil
}

// Next returns the backend for the next turn.
func (r *RoundRobin) Next() Agent {
	idx := r.current.Add(1) - 1
	return r.agents[idx%uint64(len(r.agents))]
}

// Run delegates to the next backend.
func (r *RoundRobin) Run(ctx context.Context, req *Request) (<-chan Event, error) {
	return r.Next().Run(ctx, req)
}
