package store

import "fmt"

// CorruptionError reports backing data that could not be read or decoded.
// It is recoverable: the store treats the data as empty.
type CorruptionError struct {
	Source string
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt session store %s: %v", e.Source, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// WriteError reports a failure to persist a session. The message it
// carried must not be considered recorded.
type WriteError struct {
	SessionID string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to persist session %s: %v", e.SessionID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
