package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a session id is absent from the store.
var ErrNotFound = errors.New("session not found")

// ErrPrecondition is the sentinel for stage precondition violations.
var ErrPrecondition = errors.New("stage preconditions not met")

// PreconditionError identifies exactly which prerequisite results are missing
// for a stage, so clients can say what to run first.
type PreconditionError struct {
	Stage   Stage
	Missing []ResultKey
	Reason  string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
	}
	names := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		names[i] = string(k)
	}
	return fmt.Sprintf("%s requires missing analyses: %s", e.Stage, strings.Join(names, ", "))
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// Store owns all session records. The workflow layer mutates sessions only
// through Update; Get returns a snapshot copy. Implementations must be safe
// under concurrent requests and stay swappable for a durable backend.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, mutate func(*Session) error) error
}
