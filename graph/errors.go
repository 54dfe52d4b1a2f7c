package graph

import (
	"errors"
	"fmt"
	"time"
)

// GraphDidNotConvergeError is returned when a run hits its step budget
// before reaching END. The state reached so far is returned alongside it.
type GraphDidNotConvergeError struct {
	MaxSteps int
	// LastNode is the node that ran last.
	LastNode string
	// NextNode is where routing wanted to go next.
	NextNode string
}

func (e *GraphDidNotConvergeError) Error() string {
	return fmt.Sprintf("graph did not converge after %d steps (last node %s, next %s)", e.MaxSteps, e.LastNode, e.NextNode)
}

// Is matches ErrGraphDidNotConverge.
func (e *GraphDidNotConvergeError) Is(target error) bool {
	return target == ErrGraphDidNotConverge
}

// NodeError wraps the final failure of a node after all attempts.
type NodeError struct {
	Node     string
	Attempts int
	Err      error
}

func (e *NodeError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("error in node %s after %d attempts: %v", e.Node, e.Attempts, e.Err)
	}
	return fmt.Sprintf("error in node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NodeTimeoutError is returned when a node exceeds its timeout. It is
// retryable.
type NodeTimeoutError struct {
	Node    string
	Timeout time.Duration
}

func (e *NodeTimeoutError) Error() string {
	return fmt.Sprintf("node %s timed out after %v", e.Node, e.Timeout)
}

// Temporary reports true; a timeout may succeed on another attempt.
func (e *NodeTimeoutError) Temporary() bool {
	return true
}

// IsRetryable reports whether err is worth another attempt: node timeouts
// and any error in the chain exposing Temporary() bool that returns true.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var timeout *NodeTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}
