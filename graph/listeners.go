package graph

import (
	"context"
	"time"

	"github.com/smallnest/crewgraph/log"
)

// NodeEvent names a point in a run that listeners and streams observe.
type NodeEvent string

const (
	NodeEventStart NodeEvent = "start"
	// NodeEventRetry fires after a retryable failure, before the backoff.
	NodeEventRetry    NodeEvent = "retry"
	NodeEventComplete NodeEvent = "complete"
	NodeEventError    NodeEvent = "error"

	// Run level events carry an empty node name.
	EventChainStart NodeEvent = "chain_start"
	EventChainEnd   NodeEvent = "chain_end"
)

// NodeListener observes a run. Listeners are called synchronously on the
// run goroutine, so they must not block.
type NodeListener interface {
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state any, err error)
}

// NodeListenerFunc adapts a plain function to NodeListener.
type NodeListenerFunc func(ctx context.Context, event NodeEvent, nodeName string, state any, err error)

func (f NodeListenerFunc) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
	f(ctx, event, nodeName, state, err)
}

// StreamEvent is one entry of Execution.Events.
type StreamEvent struct {
	Timestamp time.Time
	RunID     string

	// Step counts node executions from 1; run events use 0.
	Step     int
	NodeName string
	Event    NodeEvent

	// State is the merged state after the node, set on complete events.
	State any
	Error error

	// Duration is set on complete events.
	Duration time.Duration
}

// notifyListeners calls every listener in registration order. A panicking
// listener is logged and does not stop the run.
func notifyListeners(ctx context.Context, logger log.Logger, listeners []NodeListener, event NodeEvent, nodeName string, state any, err error) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("listener panicked on %s event for node %s: %v", event, nodeName, r)
				}
			}()
			l.OnNodeEvent(ctx, event, nodeName, state, err)
		}()
	}
}
