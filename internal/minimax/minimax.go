// Package minimax finds optimal tic-tac-toe moves by exhaustive search.
//
// X is the maximizing side and O the minimizing side; the value of a
// position is the utility (+1, 0, -1) of the terminal board reached when
// both sides play perfectly from it.
package minimax

import (
	"fmt"

	"github.com/jaminalder/minimax-tic-tac-toe/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Chooser picks a move for the side to act on b.
type Chooser interface {
	Choose(b domain.Board) (domain.Action, error)
}

// Score is the minimax value of playing Action.
type Score struct {
	Action domain.Action `json:"action"`
	Value  int           `json:"value"`
}

// Result is the outcome of a search from one root position.
type Result struct {
	Action domain.Action
	Value  int
	// Scores holds every legal root action in row-major order.
	Scores []Score
	// Nodes is the number of positions visited, the root included.
	Nodes int64
}

type Option func(e *Engine)

// WithParallel searches each root action in its own goroutine.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.parallel = parallel
	}
}

// WithStrict rejects boards whose mark counts could not arise from
// alternating play. Without it such boards are searched as given, with
// PlayerToMove deciding each turn.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine runs full-depth minimax. It holds no per-search state and is safe
// for concurrent use.
type Engine struct {
	parallel bool
	strict   bool
	logger   zerolog.Logger
}

func New(options ...Option) *Engine {
	e := &Engine{logger: log.Logger}
	for _, option := range options {
		option(e)
	}
	return e
}

// Choose implements Chooser.
func (e *Engine) Choose(b domain.Board) (domain.Action, error) {
	return e.BestAction(b)
}

// BestAction returns the optimal action for the side to move. Among actions
// of equal value the first in row-major order wins.
func (e *Engine) BestAction(b domain.Board) (domain.Action, error) {
	res, err := e.Evaluate(b)
	if err != nil {
		return domain.Action{}, err
	}
	return res.Action, nil
}

// Evaluate scores every legal action at the root and picks the best one.
func (e *Engine) Evaluate(b domain.Board) (Result, error) {
	if e.strict {
		if err := b.Validate(); err != nil {
			return Result{}, err
		}
	}
	if out := b.Outcome(); out.Terminal() {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrTerminalState, out)
	}

	side := b.PlayerToMove()
	actions := b.LegalActions()
	scores := make([]Score, len(actions))
	counts := make([]int64, len(actions))

	branch := func(i int) error {
		next, err := b.Apply(actions[i])
		if err != nil {
			return err
		}
		scores[i] = Score{Action: actions[i], Value: value(next, &counts[i])}
		return nil
	}

	if e.parallel {
		var g errgroup.Group
		for i := range actions {
			i := i
			g.Go(func() error { return branch(i) })
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	} else {
		for i := range actions {
			if err := branch(i); err != nil {
				return Result{}, err
			}
		}
	}

	res := Result{Scores: scores, Nodes: 1}
	for _, n := range counts {
		res.Nodes += n
	}
	for i, s := range scores {
		if i == 0 || better(side, s.Value, res.Value) {
			res.Action, res.Value = s.Action, s.Value
		}
	}

	e.logger.Debug().
		Str("board", b.String()).
		Stringer("side", side).
		Stringer("action", res.Action).
		Int("value", res.Value).
		Int64("nodes", res.Nodes).
		Bool("parallel", e.parallel).
		Msg("minimax search complete")
	return res, nil
}

// Value returns the minimax value of b. Terminal boards are their own utility.
func Value(b domain.Board) int {
	var nodes int64
	return value(b, &nodes)
}

func value(b domain.Board, nodes *int64) int {
	*nodes++
	if u, err := b.Utility(); err == nil {
		return u
	}

	side := b.PlayerToMove()
	best := 0
	for i, a := range b.LegalActions() {
		// a is an empty in-bounds cell, so the mark is placed directly.
		next := b
		next[a.Row*3+a.Col] = side
		v := value(next, nodes)
		if i == 0 || better(side, v, best) {
			best = v
		}
	}
	return best
}

// better reports whether v strictly improves on best for side.
func better(side domain.Mark, v, best int) bool {
	if side == domain.X {
		return v > best
	}
	return v < best
}
