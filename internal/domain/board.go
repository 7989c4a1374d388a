package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Mark is the content of a board cell.
type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

// X always opens; turn order is derived from the mark counts.
const (
	FirstPlayer  = X
	SecondPlayer = O
)

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return "."
	}
}

// Opponent returns the other player's mark. Empty has no opponent.
func (m Mark) Opponent() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}

// Board is a fixed 3x3 board stored row-major.
//
// Turn order is not stored: PlayerToMove derives it from the mark counts,
// so a Board built by hand must keep count(X)-count(O) in [0,1].
type Board [9]Mark

// Action is a row/column pair naming a cell.
type Action struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (a Action) String() string { return fmt.Sprintf("(%d,%d)", a.Row, a.Col) }

func (a Action) inBounds() bool {
	return a.Row >= 0 && a.Row < 3 && a.Col >= 0 && a.Col < 3
}

func (a Action) index() int { return a.Row*3 + a.Col }

// Status classifies a board.
type Status uint8

const (
	InProgress Status = iota
	Win
	Draw
)

func (s Status) String() string {
	switch s {
	case Win:
		return "win"
	case Draw:
		return "draw"
	default:
		return "in progress"
	}
}

// Outcome is the result of evaluating a board. Winner is set only for Win.
type Outcome struct {
	Status Status
	Winner Mark
}

// Terminal reports whether the game is over.
func (o Outcome) Terminal() bool { return o.Status != InProgress }

func (o Outcome) String() string {
	if o.Status == Win {
		return o.Winner.String() + " wins"
	}
	return o.Status.String()
}

// Errors returned by board operations.
var (
	ErrOutOfBounds   = errors.New("out of bounds")
	ErrIllegalMove   = errors.New("illegal move: cell occupied")
	ErrInvalidState  = errors.New("invalid board state")
	ErrTerminalState = errors.New("board is terminal")
	ErrNotTerminal   = errors.New("board is not terminal")
)

var lines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// NewBoard returns an empty board.
func NewBoard() Board { return Board{} }

func (b Board) counts() (x, o int) {
	for _, c := range b {
		switch c {
		case X:
			x++
		case O:
			o++
		}
	}
	return x, o
}

// PlayerToMove returns O when X has placed more marks than O, otherwise X.
func (b Board) PlayerToMove() Mark {
	x, o := b.counts()
	if x > o {
		return O
	}
	return X
}

// Validate checks that the board could arise from alternating play.
func (b Board) Validate() error {
	x, o := b.counts()
	if d := x - o; d < 0 || d > 1 {
		return fmt.Errorf("%w: %d X marks, %d O marks", ErrInvalidState, x, o)
	}
	if hasWin(b, X) && hasWin(b, O) {
		return fmt.Errorf("%w: both players have three in a row", ErrInvalidState)
	}
	return nil
}

// LegalActions returns every empty cell in row-major order.
func (b Board) LegalActions() []Action {
	actions := make([]Action, 0, 9)
	for i, c := range b {
		if c == Empty {
			actions = append(actions, Action{Row: i / 3, Col: i % 3})
		}
	}
	return actions
}

// At returns the mark at row r, column c.
func (b Board) At(r, c int) Mark { return b[r*3+c] }

// Apply returns a copy of b with the player to move placed on a.
// b itself is never modified.
func (b Board) Apply(a Action) (Board, error) {
	if !a.inBounds() {
		return b, fmt.Errorf("%w: %v", ErrOutOfBounds, a)
	}
	if b[a.index()] != Empty {
		return b, fmt.Errorf("%w: %v", ErrIllegalMove, a)
	}
	next := b
	next[a.index()] = b.PlayerToMove()
	return next, nil
}

// Outcome classifies the board. It does not assume the board is valid:
// when both marks own a line the first line in scan order decides.
func (b Board) Outcome() Outcome {
	for _, ln := range lines {
		m := b[ln[0]]
		if m != Empty && b[ln[1]] == m && b[ln[2]] == m {
			return Outcome{Status: Win, Winner: m}
		}
	}
	for _, c := range b {
		if c == Empty {
			return Outcome{Status: InProgress}
		}
	}
	return Outcome{Status: Draw}
}

// Utility is +1 for an X win, -1 for an O win and 0 for a draw.
// It is only defined for terminal boards.
func (b Board) Utility() (int, error) {
	out := b.Outcome()
	switch {
	case out.Status == InProgress:
		return 0, ErrNotTerminal
	case out.Status == Draw:
		return 0, nil
	case out.Winner == X:
		return 1, nil
	default:
		return -1, nil
	}
}

// String renders the board as three rows separated by '/', e.g. "XX./.O./...".
func (b Board) String() string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 && i%3 == 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}

// ParseBoard reads the form produced by String. Rows may also be separated
// by '|' or newlines, and '-' or '_' may stand for an empty cell.
func ParseBoard(s string) (Board, error) {
	var b Board
	rows := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '/' || r == '|' || r == '\n' || r == '\r'
	})
	if len(rows) != 3 {
		return b, fmt.Errorf("parse board %q: want 3 rows, got %d", s, len(rows))
	}
	for r, row := range rows {
		row = strings.TrimSpace(row)
		if len(row) != 3 {
			return b, fmt.Errorf("parse board %q: row %d has %d cells", s, r, len(row))
		}
		for c := 0; c < 3; c++ {
			switch row[c] {
			case 'X', 'x':
				b[r*3+c] = X
			case 'O', 'o':
				b[r*3+c] = O
			case '.', '-', '_':
				b[r*3+c] = Empty
			default:
				return b, fmt.Errorf("parse board %q: unexpected %q", s, row[c])
			}
		}
	}
	return b, nil
}

func hasWin(b Board, side Mark) bool {
	for _, ln := range lines {
		if b[ln[0]] == side && b[ln[1]] == side && b[ln[2]] == side {
			return true
		}
	}
	return false
}
