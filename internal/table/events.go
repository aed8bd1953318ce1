// internal/table/events.go
//
// Wire shapes pushed to the presentation layer.
//   - View:  full snapshot of what the players can see.
//   - Event: one engine notification, numbered in emission order.

package table

import "github.com/robalobadob/memorymatch/internal/game"

// EventType names an Event.
type EventType string

const (
	EventState        EventType = "state"
	EventTileShown    EventType = "tile_shown"
	EventTilesHidden  EventType = "tiles_hidden"
	EventScoreChanged EventType = "score_changed"
	EventGameOver     EventType = "game_over"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type   EventType    `json:"type"`
	Seq    uint64       `json:"seq"`
	Pos    *game.Pos    `json:"pos,omitempty"`
	Value  int          `json:"value,omitempty"`
	Tiles  []game.Pos   `json:"tiles,omitempty"`
	Score  *game.Score  `json:"score,omitempty"`
	Winner game.Outcome `json:"winner,omitempty"`
	State  *View        `json:"state,omitempty"`
}

// TileView is one cell as the players see it.
type TileView struct {
	Value    int  `json:"value"` // 0 while concealed
	Shown    bool `json:"shown"`
	Revealed bool `json:"revealed"`
}

// View is a snapshot of a table.
type View struct {
	GameID        string                         `json:"gameId"`
	Tiles         [game.Rows][game.Cols]TileView `json:"tiles"`
	CurrentPlayer game.Player                    `json:"currentPlayer"`
	Score         game.Score                     `json:"score"`
	Over          bool                           `json:"over"`
	Winner        game.Outcome                   `json:"winner,omitempty"`
	Pending       *game.Pos                      `json:"pending,omitempty"`
}

// viewOf builds a snapshot. Must run on the table loop.
func viewOf(id string, g *game.Game) View {
	v := View{
		GameID:        id,
		CurrentPlayer: g.CurrentPlayer(),
		Score:         g.Score(),
		Over:          g.IsGameOver(),
		Winner:        g.Winner(),
	}
	b := g.Board()
	for r := 0; r < game.Rows; r++ {
		for c := 0; c < game.Cols; c++ {
			tv := TileView{Revealed: b[r][c].Revealed, Shown: g.Shown(r, c)}
			if tv.Shown {
				tv.Value = b[r][c].Value
			}
			v.Tiles[r][c] = tv
		}
	}
	if p, ok := g.Pending(); ok {
		v.Pending = &p
	}
	return v
}
