package graph

// StateSchema defines the initial state and how a node's output is merged
// into the current state.
type StateSchema[S any] interface {
	// Init returns the initial state.
	Init() S

	// Update merges the update returned by a node into the current state.
	Update(current, update S) (S, error)
}

// SchemaFunc adapts a pair of functions to StateSchema.
type SchemaFunc[S any] struct {
	InitFn   func() S
	UpdateFn func(current, update S) (S, error)
}

// Init returns InitFn(), or the zero value.
func (f SchemaFunc[S]) Init() S {
	if f.InitFn == nil {
		var zero S
		return zero
	}
	return f.InitFn()
}

// Update calls UpdateFn, or replaces the state with the update.
func (f SchemaFunc[S]) Update(current, update S) (S, error) {
	if f.UpdateFn == nil {
		return update, nil
	}
	return f.UpdateFn(current, update)
}
