// internal/httpserver/ws.go
//
// GET /game/{id}/events: websocket push of table events.
// The first frame is a "state" snapshot; every later frame is one engine
// notification in emission order. The server closes the socket when the
// table closes (1001) or drops a subscriber that fell behind (1013, the
// client may resubscribe); clients only need to read.

package httpserver

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorymatch/internal/table"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	events, cancel, err := tb.Subscribe(r.Context())
	if err != nil {
		writeTableErr(w, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Debug().Err(err).Str("gameId", tb.ID).Msg("websocket upgrade")
		return
	}
	defer conn.Close()
	logger := log.With().Str("gameId", tb.ID).Str("remote", r.RemoteAddr).Logger()
	logger.Debug().Msg("events subscriber connected")

	// Reader: handles pongs and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, streamEndFrame(tb))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				logger.Debug().Err(err).Msg("events write")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			logger.Debug().Msg("events subscriber left")
			return
		}
	}
}

// streamEndFrame tells the client why its event channel ended: the game was
// closed, or the table dropped it for falling behind and it may resubscribe.
func streamEndFrame(tb *table.Table) []byte {
	if tb.Closing() {
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "game closed")
	}
	return websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "fell behind")
}

// checkOrigin accepts same-host pages, the configured client origin, and
// non-browser clients that send no Origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == s.cfg.ClientOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
