// Package rules wraps github.com/notnil/chess behind a stateless
// request/response API keyed by FEN strings.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

type Side string

const (
	White Side = "white"
	Black Side = "black"
)

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case White:
		return White, nil
	case Black:
		return Black, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
)

func (s Status) Terminal() bool {
	return s != StatusActive
}

// Result describes a position after a move was applied (or as loaded).
type Result struct {
	Position string
	Turn     Side
	Status   Status
	// Move is the applied move in UCI notation; empty for plain lookups.
	Move string
}

// IllegalMoveError is returned when a move cannot be played on a position.
type IllegalMoveError struct {
	Move   string
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %q: %s", e.Move, e.Reason)
}

var ErrInvalidPosition = errors.New("invalid position")

type Chess struct{}

func New() *Chess {
	return &Chess{}
}

// ValidateAndApply plays move on position. The move may be given in UCI
// long algebraic notation (e2e4, e7e8q) or in SAN (e4, Nf3, O-O).
func (c *Chess) ValidateAndApply(position, move string) (Result, error) {
	game, err := load(position)
	if err != nil {
		return Result{}, err
	}

	mv := strings.TrimSpace(move)
	if mv == "" {
		return Result{}, &IllegalMoveError{Move: move, Reason: "empty move"}
	}

	if status := statusOf(game); status.Terminal() {
		return Result{}, &IllegalMoveError{Move: move, Reason: fmt.Sprintf("game is over (%s)", status)}
	}

	pos := game.Position()

	if m, err := (chess.UCINotation{}).Decode(pos, strings.ToLower(mv)); err == nil {
		if err := game.Move(m); err == nil {
			return resultOf(game, m.String()), nil
		}
	}

	m, err := (chess.AlgebraicNotation{}).Decode(pos, mv)
	if err != nil {
		return Result{}, &IllegalMoveError{Move: move, Reason: fmt.Sprintf("not legal for %s to move", sideOf(pos.Turn()))}
	}

	if err := game.Move(m); err != nil {
		return Result{}, &IllegalMoveError{Move: move, Reason: err.Error()}
	}

	return resultOf(game, m.String()), nil
}

// Describe reports side to move and status of position without changing it.
func (c *Chess) Describe(position string) (Result, error) {
	game, err := load(position)
	if err != nil {
		return Result{}, err
	}

	return resultOf(game, ""), nil
}

func (c *Chess) SideToMove(position string) (Side, error) {
	r, err := c.Describe(position)
	return r.Turn, err
}

func (c *Chess) IsTerminal(position string) (bool, error) {
	r, err := c.Describe(position)
	return r.Status.Terminal(), err
}

func load(position string) (*chess.Game, error) {
	opt, err := chess.FEN(strings.TrimSpace(position))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	return chess.NewGame(opt), nil
}

func resultOf(game *chess.Game, move string) Result {
	pos := game.Position()

	return Result{
		Position: pos.String(),
		Turn:     sideOf(pos.Turn()),
		Status:   statusOf(game),
		Move:     move,
	}
}

func sideOf(c chess.Color) Side {
	if c == chess.Black {
		return Black
	}
	return White
}

func statusOf(game *chess.Game) Status {
	switch game.Method() {
	case chess.Checkmate:
		return StatusCheckmate
	case chess.Stalemate:
		return StatusStalemate
	}

	if game.Outcome() == chess.Draw {
		return StatusDraw
	}

	if game.Outcome() == chess.NoOutcome && len(game.ValidMoves()) == 0 {
		return StatusStalemate
	}

	return StatusActive
}

func (c *Chess) Status(position string) (Status, error) {
	r, err := c.Describe(position)
	return r.Status, err
}
