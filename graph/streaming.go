package graph

import "context"

// Execution is one streamed run. Events yields the run start, a start and a
// complete event per node, retry events, and the run end or error; Wait
// returns the final state of that same run. Events is buffered for the
// whole step budget, so a caller that only calls Wait never stalls the run.
type Execution[S any] struct {
	events chan StreamEvent
	done   chan struct{}
	cancel context.CancelFunc

	final S
	err   error
}

// Events returns the event channel. It is closed when the run ends.
func (e *Execution[S]) Events() <-chan StreamEvent {
	return e.events
}

// Wait blocks until the run ends and returns its final state.
func (e *Execution[S]) Wait() (S, error) {
	<-e.done
	return e.final, e.err
}

// Done is closed when the run ends.
func (e *Execution[S]) Done() <-chan struct{} {
	return e.done
}

// Cancel stops the run at the next node boundary or context check.
func (e *Execution[S]) Cancel() {
	e.cancel()
}

// Stream starts the graph in a background goroutine.
//
// Example:
//
//	exec := app.Stream(ctx, initial)
//	for ev := range exec.Events() {
//		fmt.Println(ev.NodeName, ev.Event)
//	}
//	final, err := exec.Wait()
func (r *StateRunnable[S]) Stream(ctx context.Context, initialState S) *Execution[S] {
	ctx, cancel := context.WithCancel(ctx)
	exec := &Execution[S]{
		events: make(chan StreamEvent, r.bufferSize()),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer cancel()
		final, err := r.run(ctx, initialState, func(ev StreamEvent) {
			select {
			case exec.events <- ev:
			default:
				r.graph.logger.Warn("dropping stream event %s for node %s", ev.Event, ev.NodeName)
			}
		})
		exec.final, exec.err = final, err
		close(exec.events)
		close(exec.done)
	}()

	return exec
}

// bufferSize covers every event a run can emit: run start and end or error,
// then per step a start, a complete and one event per retry.
func (r *StateRunnable[S]) bufferSize() int {
	retries := 0
	if p := r.graph.retryPolicy; p != nil && p.MaxRetries > 0 {
		retries = p.MaxRetries
	}
	return 2 + r.graph.maxSteps*(2+retries)
}
