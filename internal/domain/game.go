package domain

import "errors"

// Game holds the current state of a Tic-Tac-Toe match.
type Game struct {
	Board  Board
	Winner Mark
	Over   bool
	Moves  int
}

// ErrGameOver is returned when a move is attempted after the game ended.
var ErrGameOver = errors.New("game over")

// New returns a new game with X to move.
func New() Game {
	return Game{Board: NewBoard()}
}

// FromBoard starts a game from an existing position.
func FromBoard(b Board) (Game, error) {
	if err := b.Validate(); err != nil {
		return Game{}, err
	}
	g := Game{Board: b, Moves: 9 - len(b.LegalActions())}
	g.settle()
	return g, nil
}

// Turn returns the mark to move, derived from the board.
func (g Game) Turn() Mark {
	return g.Board.PlayerToMove()
}

// Outcome classifies the current board.
func (g Game) Outcome() Outcome {
	return g.Board.Outcome()
}

// Play attempts to play the current turn at row r, column c (0..2).
func (g *Game) Play(r, c int) error {
	if g.Over {
		return ErrGameOver
	}
	next, err := g.Board.Apply(Action{Row: r, Col: c})
	if err != nil {
		return err
	}
	g.Board = next
	g.Moves++
	g.settle()
	return nil
}

func (g *Game) settle() {
	out := g.Board.Outcome()
	if !out.Terminal() {
		return
	}
	g.Over = true
	g.Winner = out.Winner
}
