package graph

import (
	"context"
	"errors"
	"time"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

// DefaultMaxSteps bounds the number of node executions in one run when the
// graph does not set its own limit.
const DefaultMaxSteps = 25

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrGraphDidNotConverge is matched by errors.Is when a run exceeds its step budget.
	ErrGraphDidNotConverge = errors.New("graph did not converge")
)

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// Router picks the next node from the current state. It must be a pure
// function: the same state always yields the same node.
type Router[S any] func(ctx context.Context, state S) string

// TypedNode represents a typed node in the graph.
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)

	// Timeout overrides the graph-wide node timeout when positive.
	Timeout time.Duration
}

type conditionalEdge[S any] struct {
	router  Router[S]
	targets []string
}
