// internal/httpserver/server.go
//
// HTTP wiring for the memory matching server.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs,
//     access logging).
//   - Public endpoints: "/", "/health", "/play".
//   - Game endpoints: POST /game/new, GET /game/{id},
//     POST /game/{id}/select, DELETE /game/{id}.
//   - Event stream: GET /game/{id}/events (websocket, see ws.go).
//
// Notes:
//   - Creating a game returns a control token; selecting tiles and closing the
//     game require it. Reading state and events is open, so a second screen
//     can spectate.
//   - The engine trusts its coordinates, so range checks live here.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorymatch/assets"
	"github.com/robalobadob/memorymatch/internal/config"
	"github.com/robalobadob/memorymatch/internal/game"
	"github.com/robalobadob/memorymatch/internal/store"
	"github.com/robalobadob/memorymatch/internal/table"
)

// Server bundles router, table store, and token issuer.
type Server struct {
	r        *chi.Mux
	store    store.Store
	cfg      config.Config
	clock    clock.Clock
	tokens   *tokenIssuer
	upgrader websocket.Upgrader
}

// New constructs a Server, installs middleware, and registers routes.
// A nil clk uses the wall clock; tests pass a mock to drive hide timers.
func New(st store.Store, cfg config.Config, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	s := &Server{
		r:      chi.NewRouter(),
		store:  st,
		cfg:    cfg,
		clock:  clk,
		tokens: newTokenIssuer(cfg.TokenSecret, cfg.TokenTTL, clk.Now),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(requestLogger)   // one access line per request
	s.r.Use(s.cors)          // credentials-friendly CORS

	// Long-lived websocket; must not sit behind the handler timeout.
	s.r.Get("/game/{id}/events", s.handleEvents)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout)) // bound handler time
		r.Use(jsonContentType)                   // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"memory-match","endpoints":["/health","/play","POST /game/new","GET /game/{id}","POST /game/{id}/select","DELETE /game/{id}","GET /game/{id}/events"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "tables": s.store.Len()})
		})
		r.Get("/play", s.handlePlay)

		// --- game ---
		r.Post("/game/new", s.handleNewGame)
		r.Get("/game/{id}", s.handleGetGame)
		r.With(s.requireToken).Post("/game/{id}/select", s.handleSelect)
		r.With(s.requireToken).Delete("/game/{id}", s.handleDeleteGame)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]string{"error": "not_found", "path": r.URL.Path})
		http.Error(w, string(body), http.StatusNotFound)
	})

	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler { return s.r }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one zerolog line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// requireToken rejects requests without a valid control token for {id}.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerOrQuery(r)
		if tok == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if err := s.tokens.verify(tok, chi.URLParam(r, "id")); err != nil {
			log.Debug().Err(err).Msg("rejected control token")
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ GAME ---------------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Values *[game.Rows][game.Cols]int `json:"values"` // optional fixed board (testing, scripted play)
}
type newGameRes struct {
	GameID    string     `json:"gameId"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	State     table.View `json:"state"`
}

// handleNewGame opens a table, registers it, and hands out its control token.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}

	tb, err := table.New(uuid.NewString(), req.Values, s.clock)
	if err != nil {
		http.Error(w, `{"error":"invalid_board"}`, http.StatusBadRequest)
		return
	}
	if err := s.store.Save(r.Context(), tb); err != nil {
		tb.Close()
		if errors.Is(err, store.ErrFull) {
			http.Error(w, `{"error":"too_many_games"}`, http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Msg("save table")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	tok, exp, err := s.tokens.issue(tb.ID)
	if err != nil {
		log.Error().Err(err).Str("gameId", tb.ID).Msg("sign token")
		_ = s.store.Delete(r.Context(), tb.ID)
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	v, err := tb.View(r.Context())
	if err != nil {
		_ = s.store.Delete(r.Context(), tb.ID)
		writeTableErr(w, err)
		return
	}
	log.Info().Str("gameId", tb.ID).Bool("fixed", req.Values != nil).Msg("game created")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(newGameRes{GameID: tb.ID, Token: tok, ExpiresAt: exp, State: v})
}

// handleGetGame returns the current view.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	tb, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	v, err := tb.View(r.Context())
	if err != nil {
		writeTableErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// selectReq is the payload for POST /game/{id}/select.
type selectReq struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

// handleSelect forwards a tile click and returns the view after it.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if req.Row == nil || req.Col == nil {
		http.Error(w, `{"error":"missing_coordinates"}`, http.StatusBadRequest)
		return
	}
	if !(game.Pos{Row: *req.Row, Col: *req.Col}).InRange() {
		http.Error(w, `{"error":"out_of_range"}`, http.StatusBadRequest)
		return
	}
	tb, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	v, err := tb.Select(r.Context(), *req.Row, *req.Col)
	if err != nil {
		writeTableErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// handleDeleteGame closes the table.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	log.Info().Str("gameId", id).Msg("game closed")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// handlePlay serves the embedded browser client.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	page, err := assets.IndexHTML()
	if err != nil {
		log.Error().Err(err).Msg("read index page")
		http.Error(w, `{"error":"asset_missing"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// ------------------------------- helpers -----------------------------------

// tableFor loads the table named by {id}, writing a 404 when it is unknown.
func (s *Server) tableFor(w http.ResponseWriter, r *http.Request) (*table.Table, bool) {
	tb, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return nil, false
	}
	return tb, true
}

// writeTableErr maps table/loop errors to HTTP statuses.
func writeTableErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, table.ErrClosed):
		http.Error(w, `{"error":"game_closed"}`, http.StatusGone)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, `{"error":"timeout"}`, http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("table call")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}
}
