// internal/game/engine.go
//
// Core engine for a single memory matching session.
// Responsibilities:
//   - Build a shuffled 4x4 board holding each value 1..8 exactly twice.
//   - Apply tile selections: show, remember the first pick, resolve the second.
//   - Score matches for the acting player; rotate the turn on a mismatch.
//   - Schedule the delayed hide of a mismatched pair.
//   - Track state transitions: in progress → over.
//
// Notes:
//   - The engine is not safe for concurrent use. A single goroutine (see the
//     table package) drives SelectTile and runs scheduled callbacks.
//   - Selections that cannot apply are silent no-ops, never errors.
package game

import (
	"errors"
	"fmt"
)

// ErrInvalidBoard is returned by NewWithValues when the grid is not exactly
// two copies of each value 1..Pairs.
var ErrInvalidBoard = errors.New("invalid board")

// Game is the state of one session.
type Game struct {
	board   Board
	shown   [Rows][Cols]bool
	showGen [Rows][Cols]uint64 // bumped each time a tile is shown
	pending *Pos
	turn    Player
	score   Score

	listener Listener
	sched    Scheduler
}

// New constructs a game with a freshly shuffled board.
// A nil listener discards notifications; sched must not be nil.
func New(l Listener, sched Scheduler) *Game {
	return newGame(shuffledValues(), l, sched)
}

// NewWithValues constructs a game over a fixed grid of values.
func NewWithValues(values [Rows][Cols]int, l Listener, sched Scheduler) (*Game, error) {
	if err := validateValues(values); err != nil {
		return nil, err
	}
	return newGame(values, l, sched), nil
}

func newGame(values [Rows][Cols]int, l Listener, sched Scheduler) *Game {
	if sched == nil {
		panic("game: nil scheduler")
	}
	if l == nil {
		l = NopListener{}
	}
	g := &Game{turn: Player1, listener: l, sched: sched}
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			g.board[r][c] = Tile{Value: values[r][c]}
		}
	}
	return g
}

// SelectTile applies a click on (row, col).
//
// Ignored when the game is over, the tile is already revealed, or the tile is
// the pending first pick. Otherwise the tile is shown and either becomes the
// pending pick or is compared against it.
func (g *Game) SelectTile(row, col int) {
	if g.IsGameOver() || g.board[row][col].Revealed {
		return
	}
	p := Pos{Row: row, Col: col}
	if g.pending != nil && *g.pending == p {
		return
	}

	g.shown[row][col] = true
	g.showGen[row][col]++
	g.listener.TileShown(p, g.board[row][col].Value)

	if g.pending == nil {
		g.pending = &p
		return
	}

	first := *g.pending
	g.pending = nil
	if g.valueAt(first) == g.valueAt(p) {
		g.resolveMatch(first, p)
		return
	}
	g.resolveMismatch(first, p)
}

func (g *Game) resolveMatch(a, b Pos) {
	g.board[a.Row][a.Col].Revealed = true
	g.board[b.Row][b.Col].Revealed = true
	g.score.credit(g.turn)
	g.listener.ScoreChanged(g.score)
	if g.IsGameOver() {
		g.listener.GameOver(g.Winner(), g.score)
	}
}

// resolveMismatch flips the turn right away; the pair stays shown until the
// scheduled hide runs.
func (g *Game) resolveMismatch(a, b Pos) {
	g.turn = g.turn.Other()
	shows := []showing{
		{Pos: a, gen: g.showGen[a.Row][a.Col]},
		{Pos: b, gen: g.showGen[b.Row][b.Col]},
	}
	g.sched.AfterFunc(HideDelay, func() { g.hide(shows...) })
}

// showing is one tile display a scheduled hide is responsible for.
type showing struct {
	Pos
	gen uint64
}

// hide conceals the given tiles unless they were matched or shown again
// while the delay was running. A tile shown again belongs to the later
// display: it is either the pending pick or owned by a later hide.
func (g *Game) hide(shows ...showing) {
	hidden := make([]Pos, 0, len(shows))
	for _, s := range shows {
		p := s.Pos
		if g.board[p.Row][p.Col].Revealed || g.showGen[p.Row][p.Col] != s.gen {
			continue
		}
		if !g.shown[p.Row][p.Col] {
			continue
		}
		g.shown[p.Row][p.Col] = false
		hidden = append(hidden, p)
	}
	if len(hidden) > 0 {
		g.listener.TilesHidden(hidden...)
	}
}

// IsGameOver reports whether every pair has been found.
func (g *Game) IsGameOver() bool { return g.score.Total() == Pairs }

// Winner returns the outcome of a finished game, or OutcomeNone while play
// continues.
func (g *Game) Winner() Outcome {
	if !g.IsGameOver() {
		return OutcomeNone
	}
	switch {
	case g.score.Player1 > g.score.Player2:
		return OutcomePlayer1
	case g.score.Player2 > g.score.Player1:
		return OutcomePlayer2
	default:
		return OutcomeTie
	}
}

// CurrentPlayer is the seat whose pick comes next.
func (g *Game) CurrentPlayer() Player { return g.turn }

// Score returns a copy of the scores.
func (g *Game) Score() Score { return g.score }

// Board returns a copy of the grid.
func (g *Game) Board() Board { return g.board }

// Pending returns the first pick awaiting its partner, if any.
func (g *Game) Pending() (Pos, bool) {
	if g.pending == nil {
		return Pos{}, false
	}
	return *g.pending, true
}

// Shown reports whether the tile's value is currently displayed.
// Revealed tiles are always shown.
func (g *Game) Shown(row, col int) bool {
	return g.board[row][col].Revealed || g.shown[row][col]
}

func (g *Game) valueAt(p Pos) int { return g.board[p.Row][p.Col].Value }

// validateValues checks the multiset invariant: each of 1..Pairs twice.
func validateValues(values [Rows][Cols]int) error {
	var counts [Pairs + 1]int
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			v := values[r][c]
			if v < 1 || v > Pairs {
				return fmt.Errorf("%w: value %d at (%d,%d)", ErrInvalidBoard, v, r, c)
			}
			counts[v]++
		}
	}
	for v := 1; v <= Pairs; v++ {
		if counts[v] != 2 {
			return fmt.Errorf("%w: value %d appears %d times", ErrInvalidBoard, v, counts[v])
		}
	}
	return nil
}
