package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/crewgraph/log"
)

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type.
//
// Example usage:
//
//	g := graph.NewStateGraph[graph.MessagesState]()
//	g.SetSchema(graph.MessagesSchema{})
//	g.AddNode("echo", "Repeat the last message", func(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
//	    last, _ := s.Messages.Last()
//	    return graph.Update(transcript.AI(last.Content)), nil
//	})
//	g.SetEntryPoint("echo")
//	g.AddEdge("echo", graph.END)
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]TypedNode[S]

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to the router deciding its "To" node
	conditionalEdges map[string]conditionalEdge[S]

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// retryPolicy defines retry behavior for failed nodes
	retryPolicy *RetryPolicy

	// nodeTimeout applies to nodes without their own timeout
	nodeTimeout time.Duration

	// maxSteps bounds node executions per run
	maxSteps int

	listeners []NodeListener
	logger    log.Logger

	// Schema defines the state structure and update logic
	Schema StateSchema[S]
}

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]conditionalEdge[S]),
		maxSteps:         DefaultMaxSteps,
		logger:           log.GetDefaultLogger(),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddNodeWithTimeout adds a node whose every attempt is limited to timeout.
func (g *StateGraph[S]) AddNodeWithTimeout(name string, description string, fn func(ctx context.Context, state S) (S, error), timeout time.Duration) {
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
		Timeout:     timeout,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// When targets are given, Compile checks they exist and the router may only
// return one of them.
//
// Example:
//
//	g.AddConditionalEdge("review", func(ctx context.Context, s graph.MessagesState) string {
//	    if s.GetString("verdict") == "approved" {
//	        return graph.END
//	    }
//	    return "write"
//	}, "write", graph.END)
func (g *StateGraph[S]) AddConditionalEdge(from string, router Router[S], targets ...string) {
	g.conditionalEdges[from] = conditionalEdge[S]{router: router, targets: targets}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy sets the retry policy for the graph.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// SetNodeTimeout limits every node attempt. Zero disables the limit.
func (g *StateGraph[S]) SetNodeTimeout(timeout time.Duration) {
	g.nodeTimeout = timeout
}

// SetMaxSteps bounds the number of node executions in one run.
// Values below one reset it to DefaultMaxSteps.
func (g *StateGraph[S]) SetMaxSteps(n int) {
	if n < 1 {
		n = DefaultMaxSteps
	}
	g.maxSteps = n
}

// SetSchema sets the state schema for the graph.
func (g *StateGraph[S]) SetSchema(schema StateSchema[S]) {
	g.Schema = schema
}

// SetLogger sets the logger used for run diagnostics.
func (g *StateGraph[S]) SetLogger(logger log.Logger) {
	g.logger = log.OrDefault(logger)
}

// AddListener registers a listener notified of node and run events.
func (g *StateGraph[S]) AddListener(l NodeListener) {
	g.listeners = append(g.listeners, l)
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
type StateRunnable[S any] struct {
	graph *StateGraph[S]
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}

	staticOut := make(map[string]int)
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if !g.known(e.To) {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
		staticOut[e.From]++
	}

	for from, ce := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
		for _, to := range ce.targets {
			if !g.known(to) {
				return nil, fmt.Errorf("%w: conditional edge target %s", ErrNodeNotFound, to)
			}
		}
	}

	for name := range g.nodes {
		_, conditional := g.conditionalEdges[name]
		switch {
		case conditional:
		case staticOut[name] == 0:
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
		case staticOut[name] > 1:
			return nil, fmt.Errorf("node %s has %d outgoing edges; use a conditional edge to branch", name, staticOut[name])
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

func (g *StateGraph[S]) known(name string) bool {
	if name == END {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

// Graph returns the graph the runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// Invoke executes the compiled state graph with the given input state.
// When the step budget is exhausted it returns the last state together
// with a *GraphDidNotConvergeError.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.run(ctx, initialState, nil)
}

func (r *StateRunnable[S]) run(ctx context.Context, initialState S, emit func(StreamEvent)) (S, error) {
	g := r.graph
	runID := uuid.NewString()
	ctx = withRun(ctx, runID)

	send := func(ev StreamEvent) {
		if emit == nil {
			return
		}
		ev.Timestamp = time.Now()
		ev.RunID = runID
		emit(ev)
	}

	state := initialState
	if g.Schema != nil {
		var err error
		state, err = g.Schema.Update(g.Schema.Init(), initialState)
		if err != nil {
			return initialState, fmt.Errorf("failed to initialize state with schema: %w", err)
		}
	}

	g.logger.Debug("run %s started at %s", runID, g.entryPoint)
	notifyListeners(ctx, g.logger, g.listeners, EventChainStart, g.entryPoint, state, nil)
	send(StreamEvent{Event: EventChainStart, NodeName: g.entryPoint, State: state})

	fail := func(step int, node string, err error) (S, error) {
		g.logger.Warn("run %s failed at %s: %v", runID, node, err)
		notifyListeners(ctx, g.logger, g.listeners, NodeEventError, node, state, err)
		send(StreamEvent{Event: NodeEventError, Step: step, NodeName: node, State: state, Error: err})
		return state, err
	}

	current := g.entryPoint
	last := ""
	for step := 1; current != END; step++ {
		if err := ctx.Err(); err != nil {
			return fail(step, current, err)
		}
		if step > g.maxSteps {
			return fail(step, current, &GraphDidNotConvergeError{
				MaxSteps: g.maxSteps,
				LastNode: last,
				NextNode: current,
			})
		}

		node, ok := g.nodes[current]
		if !ok {
			return fail(step, current, fmt.Errorf("%w: %s", ErrNodeNotFound, current))
		}

		stepCtx := withStep(ctx, step)
		notifyListeners(stepCtx, g.logger, g.listeners, NodeEventStart, current, state, nil)
		send(StreamEvent{Event: NodeEventStart, Step: step, NodeName: current, State: state})
		start := time.Now()

		update, err := r.executeNode(stepCtx, node, state, func(err error) {
			send(StreamEvent{Event: NodeEventRetry, Step: step, NodeName: current, State: state, Error: err})
		})
		if err != nil {
			return fail(step, current, err)
		}

		merged, err := r.mergeState(state, update)
		if err != nil {
			return fail(step, current, err)
		}
		state = merged

		duration := time.Since(start)
		g.logger.Debug("run %s step %d: %s completed in %v", runID, step, current, duration)
		notifyListeners(stepCtx, g.logger, g.listeners, NodeEventComplete, current, state, nil)
		send(StreamEvent{Event: NodeEventComplete, Step: step, NodeName: current, State: state, Duration: duration})

		next, err := r.nextNode(stepCtx, current, state)
		if err != nil {
			return fail(step, current, err)
		}
		last, current = current, next
	}

	g.logger.Debug("run %s reached END after %s", runID, last)
	notifyListeners(ctx, g.logger, g.listeners, EventChainEnd, last, state, nil)
	send(StreamEvent{Event: EventChainEnd, NodeName: last, State: state})
	return state, nil
}

// executeNode runs one node under its timeout and the graph retry policy.
// onRetry is called with each failure that is about to be retried.
func (r *StateRunnable[S]) executeNode(ctx context.Context, node TypedNode[S], state S, onRetry func(error)) (S, error) {
	g := r.graph
	timeout := node.Timeout
	if timeout <= 0 {
		timeout = g.nodeTimeout
	}

	var policy *RetryPolicy
	if orig := g.retryPolicy; orig != nil {
		wrapped := *orig
		wrapped.Retryable = func(err error) bool {
			if !orig.ShouldRetry(err) {
				return false
			}
			g.logger.Warn("node %s failed, retrying: %v", node.Name, err)
			notifyListeners(ctx, g.logger, g.listeners, NodeEventRetry, node.Name, state, err)
			onRetry(err)
			return true
		}
		policy = &wrapped
	}

	result, attempts, err := Retry(ctx, policy, func(ctx context.Context) (S, error) {
		return runWithTimeout(ctx, node, timeout, state)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return result, err
		}
		return result, &NodeError{Node: node.Name, Attempts: attempts, Err: err}
	}
	return result, nil
}

// mergeState merges a node result into the current state.
func (r *StateRunnable[S]) mergeState(current, update S) (S, error) {
	if r.graph.Schema == nil {
		return update, nil
	}
	merged, err := r.graph.Schema.Update(current, update)
	if err != nil {
		return current, fmt.Errorf("schema update failed: %w", err)
	}
	return merged, nil
}

// nextNode resolves the outgoing edge of the node that just ran.
func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	g := r.graph
	if ce, ok := g.conditionalEdges[from]; ok {
		next := ce.router(ctx, state)
		if next == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		if len(ce.targets) > 0 && !slices.Contains(ce.targets, next) {
			return "", fmt.Errorf("conditional edge from %s returned undeclared target %s", from, next)
		}
		return next, nil
	}

	for _, e := range g.edges {
		if e.From == from {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
