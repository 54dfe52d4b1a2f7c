package graph

import "context"

type runIDKey struct{}
type stepKey struct{}

func withRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func withStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, stepKey{}, step)
}

// RunID returns the id of the run executing the node, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Step returns the 1-based step number of the executing node, or 0.
func Step(ctx context.Context) int {
	n, _ := ctx.Value(stepKey{}).(int)
	return n
}
