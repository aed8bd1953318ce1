// internal/game/types.go
//
// Core type definitions for the memory matching engine.
// Defines:
//   - Player / Outcome: whose turn it is and who won.
//   - Pos, Tile, Board: the fixed 4x4 grid of concealed values.
//   - Score: per-player pair counts.
//   - Listener / Scheduler: the engine's outward notifications and its
//     source of deferred work.

package game

import "time"

const (
	Rows  = 4
	Cols  = 4
	Pairs = Rows * Cols / 2

	// HideDelay is how long a mismatched pair stays shown before it is concealed.
	HideDelay = 1000 * time.Millisecond
)

// Player identifies one of the two seats.
type Player int

const (
	Player1 Player = 1
	Player2 Player = 2
)

// Other returns the opposing seat.
func (p Player) Other() Player {
	if p == Player1 {
		return Player2
	}
	return Player1
}

// Outcome is the result of a finished game.
// Possible values:
//   - "":        game still in progress.
//   - "player1": player 1 found more pairs.
//   - "player2": player 2 found more pairs.
//   - "tie":     both found four.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomePlayer1 Outcome = "player1"
	OutcomePlayer2 Outcome = "player2"
	OutcomeTie     Outcome = "tie"
)

// Pos is a grid coordinate, zero-based.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// InRange reports whether p lies on the board.
func (p Pos) InRange() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

// Tile is one grid cell.
type Tile struct {
	Value    int  `json:"value"`    // 1..Pairs
	Revealed bool `json:"revealed"` // true once matched; never reset
}

// Board is the grid, row-major.
type Board [Rows][Cols]Tile

// Score holds the number of pairs found by each player.
type Score struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

// Total is the number of pairs found so far.
func (s Score) Total() int { return s.Player1 + s.Player2 }

func (s *Score) credit(p Player) {
	if p == Player1 {
		s.Player1++
	} else {
		s.Player2++
	}
}

// Listener receives the engine's notifications. Calls happen synchronously on
// the goroutine driving the engine.
type Listener interface {
	// TileShown fires for every accepted selection, before it is resolved.
	TileShown(p Pos, value int)
	// TilesHidden fires from the deferred mismatch handler with the tiles
	// that were concealed again.
	TilesHidden(ps ...Pos)
	// ScoreChanged fires after every match.
	ScoreChanged(s Score)
	// GameOver fires once, on the match that completes the board.
	GameOver(w Outcome, s Score)
}

// Scheduler runs fn once after d. Implementations must invoke fn on the same
// logical thread that calls Game.SelectTile.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// NopListener discards all notifications.
type NopListener struct{}

func (NopListener) TileShown(Pos, int) {}
func (NopListener) TilesHidden(...Pos) {}
func (NopListener) ScoreChanged(Score) {}
func (NopListener) GameOver(Outcome, Score) {}
