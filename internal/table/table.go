// internal/table/table.go
//
// A Table hosts one game on its own goroutine.
// Responsibilities:
//   - Serialise selections, snapshots and deferred hides onto a single loop,
//     so the engine never sees concurrent calls.
//   - Act as the engine's Scheduler: timers fire on a clock.Clock and post
//     their callback back into the loop.
//   - Act as the engine's Listener: turn notifications into numbered Events
//     and fan them out to subscribers.
//
// Notes:
//   - Slow subscribers are dropped rather than allowed to stall the loop.
//   - Close stops outstanding timers; a hide racing a close is discarded.

package table

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorymatch/internal/game"
)

// ErrClosed is returned by calls on a table whose loop has stopped.
var ErrClosed = errors.New("table closed")

const subscriberBuffer = 64

// Table is one live game plus the goroutine that drives it.
type Table struct {
	ID        string
	CreatedAt time.Time

	clock      clock.Clock
	log        zerolog.Logger
	over       atomic.Bool
	lastActive atomic.Int64 // unix nanos of the latest selection

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	game      *game.Game
	timers    map[uint64]*clock.Timer
	nextTimer uint64
	subs      map[uint64]chan Event
	nextSub   uint64
	seq       uint64
}

// New starts a table. When values is nil the board is shuffled.
// A nil clk uses the wall clock.
func New(id string, values *[game.Rows][game.Cols]int, clk clock.Clock) (*Table, error) {
	if clk == nil {
		clk = clock.New()
	}
	t := &Table{
		ID:        id,
		CreatedAt: clk.Now(),
		clock:     clk,
		log:       log.With().Str("game_id", id).Logger(),
		inbox:     make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		timers:    make(map[uint64]*clock.Timer),
		subs:      make(map[uint64]chan Event),
	}
	t.lastActive.Store(t.CreatedAt.UnixNano())
	if values != nil {
		g, err := game.NewWithValues(*values, t, t)
		if err != nil {
			return nil, err
		}
		t.game = g
	} else {
		t.game = game.New(t, t)
	}
	go t.run()
	t.log.Debug().Msg("table opened")
	return t, nil
}

func (t *Table) run() {
	defer close(t.done)
	for {
		select {
		case fn := <-t.inbox:
			fn()
		case <-t.quit:
			t.shutdown()
			return
		}
	}
}

func (t *Table) shutdown() {
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	t.log.Debug().Msg("table closed")
}

// do runs fn on the loop and waits for it to finish. Once the loop has taken
// fn it always runs to completion, so ctx only bounds the wait to hand it over.
func (t *Table) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case t.inbox <- func() { fn(); close(ran) }:
	case <-t.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// post queues fn on the loop without waiting. Dropped once closed.
func (t *Table) post(fn func()) {
	select {
	case t.inbox <- fn:
	case <-t.quit:
	}
}

// Select forwards a tile click to the engine and returns the resulting view.
// Coordinates must be on the board.
func (t *Table) Select(ctx context.Context, row, col int) (View, error) {
	var v View
	err := t.do(ctx, func() {
		t.lastActive.Store(t.clock.Now().UnixNano())
		t.game.SelectTile(row, col)
		v = viewOf(t.ID, t.game)
	})
	return v, err
}

// View returns the current snapshot.
func (t *Table) View(ctx context.Context) (View, error) {
	var v View
	err := t.do(ctx, func() { v = viewOf(t.ID, t.game) })
	return v, err
}

// Subscribe registers for events. The first event on the channel is a state
// snapshot. The channel is closed when the table closes, when cancel is
// called, or when the subscriber falls too far behind.
func (t *Table) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	var id uint64
	err := t.do(ctx, func() {
		id = t.nextSub
		t.nextSub++
		t.subs[id] = ch
		v := viewOf(t.ID, t.game)
		ch <- Event{Type: EventState, Seq: t.seq, State: &v}
	})
	if err != nil {
		return nil, nil, err
	}
	cancel := func() {
		t.post(func() {
			if c, ok := t.subs[id]; ok {
				close(c)
				delete(t.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

// LastActive is the time of the latest selection, or CreatedAt before the
// first one. Safe from any goroutine.
func (t *Table) LastActive() time.Time { return time.Unix(0, t.lastActive.Load()) }

// Over reports whether the hosted game has finished. Safe from any goroutine.
func (t *Table) Over() bool { return t.over.Load() }

// Close stops the loop. Safe to call more than once.
func (t *Table) Close() {
	t.closeOnce.Do(func() { close(t.quit) })
	<-t.done
}

// Closing reports whether Close has been called. A subscriber channel that
// closes while this is still false was dropped for falling behind.
func (t *Table) Closing() bool {
	select {
	case <-t.quit:
		return true
	default:
		return false
	}
}

// Done is closed once the loop has stopped.
func (t *Table) Done() <-chan struct{} { return t.done }

// ------------------------------ Scheduler ----------------------------------

// AfterFunc implements game.Scheduler. Runs on the loop.
func (t *Table) AfterFunc(d time.Duration, fn func()) {
	id := t.nextTimer
	t.nextTimer++
	t.timers[id] = t.clock.AfterFunc(d, func() {
		t.post(func() {
			delete(t.timers, id)
			fn()
		})
	})
}

// ------------------------------ Listener -----------------------------------

func (t *Table) TileShown(p game.Pos, value int) {
	t.broadcast(Event{Type: EventTileShown, Pos: &p, Value: value})
}

func (t *Table) TilesHidden(ps ...game.Pos) {
	t.broadcast(Event{Type: EventTilesHidden, Tiles: ps})
}

func (t *Table) ScoreChanged(s game.Score) {
	t.log.Debug().Int("player1", s.Player1).Int("player2", s.Player2).Msg("pair found")
	t.broadcast(Event{Type: EventScoreChanged, Score: &s})
}

func (t *Table) GameOver(w game.Outcome, s game.Score) {
	t.over.Store(true)
	t.log.Info().Str("winner", string(w)).Int("player1", s.Player1).Int("player2", s.Player2).Msg("game over")
	t.broadcast(Event{Type: EventGameOver, Winner: w, Score: &s})
}

// broadcast numbers e and hands it to every subscriber. Runs on the loop.
func (t *Table) broadcast(e Event) {
	t.seq++
	e.Seq = t.seq
	for id, ch := range t.subs {
		select {
		case ch <- e:
		default:
			t.log.Warn().Uint64("subscriber", id).Msg("dropping slow subscriber")
			close(ch)
			delete(t.subs, id)
		}
	}
}
