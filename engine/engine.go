// Package engine asks an external move generator for a reply move.
package engine

import (
	"context"
	"fmt"
	"time"
)

type Kind string

const (
	Unavailable Kind = "unavailable"
	Timeout     Kind = "timeout"
	NoLegalMove Kind = "no_legal_move"
)

// Error is returned by every Bridge failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine %s", e.Kind)
	}
	return fmt.Sprintf("engine %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Bridge returns the engine's choice for position within budget, in UCI
// long algebraic notation.
type Bridge interface {
	BestMove(ctx context.Context, position string, budget time.Duration) (string, error)
}
