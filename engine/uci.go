package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"
)

// DefaultGrace is added to the move time before a search is abandoned.
const DefaultGrace = time.Second

// UCI runs one engine process per request.
type UCI struct {
	path  string
	grace time.Duration
}

type UCIOptions struct {
	Path  string
	Grace time.Duration
}

func NewUCI(opts UCIOptions) *UCI {
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	return &UCI{
		path:  opts.Path,
		grace: grace,
	}
}

func (u *UCI) BestMove(ctx context.Context, position string, budget time.Duration) (string, error) {
	fen, err := chess.FEN(position)
	if err != nil {
		return "", &Error{Kind: NoLegalMove, Err: err}
	}

	game := chess.NewGame(fen)
	if len(game.ValidMoves()) == 0 {
		return "", &Error{Kind: NoLegalMove, Err: errors.New("position is terminal")}
	}

	if _, err := exec.LookPath(u.path); err != nil {
		return "", &Error{Kind: Unavailable, Err: err}
	}

	eng, err := uci.New(u.path)
	if err != nil {
		return "", &Error{Kind: Unavailable, Err: err}
	}

	type answer struct {
		move string
		err  error
	}

	done := make(chan answer, 1)

	// the search goroutine owns the process and closes it once Run returns,
	// so Close never races a command still in flight
	go func() {
		move, err := search(eng, game.Position(), budget)
		_ = eng.Close()
		done <- answer{move: move, err: err}
	}()

	timer := time.NewTimer(budget + u.grace)
	defer timer.Stop()

	select {
	case a := <-done:
		return a.move, a.err

	case <-timer.C:
		return "", &Error{Kind: Timeout, Err: fmt.Errorf("no answer within %s", budget+u.grace)}

	case <-ctx.Done():
		return "", &Error{Kind: Timeout, Err: ctx.Err()}
	}
}

func search(eng *uci.Engine, pos *chess.Position, budget time.Duration) (string, error) {
	if err := eng.Run(uci.CmdUCI, uci.CmdIsReady, uci.CmdUCINewGame); err != nil {
		return "", &Error{Kind: Unavailable, Err: err}
	}

	if err := eng.Run(uci.CmdPosition{Position: pos}, uci.CmdGo{MoveTime: budget}); err != nil {
		return "", &Error{Kind: Unavailable, Err: err}
	}

	best := eng.SearchResults().BestMove
	if best == nil {
		return "", &Error{Kind: NoLegalMove, Err: errors.New("empty best move")}
	}

	return best.String(), nil
}
