package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/memorymatch/internal/config"
	"github.com/robalobadob/memorymatch/internal/game"
	"github.com/robalobadob/memorymatch/internal/store"
	"github.com/robalobadob/memorymatch/internal/table"
)

var fixedValues = [game.Rows][game.Cols]int{
	{5, 3, 2, 1},
	{4, 5, 6, 7},
	{8, 1, 2, 3},
	{4, 6, 7, 8},
}

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type harness struct {
	srv   *httptest.Server
	store store.Store
	clock *clock.Mock
}

func newHarness(t *testing.T, maxTables int) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		ClientOrigin:   "http://localhost:5173",
		TokenSecret:    "test-secret",
		TokenTTL:       time.Hour,
		MaxTables:      maxTables,
		TableIdleTTL:   30 * time.Minute,
		RequestTimeout: 5 * time.Second,
	}
	st := store.NewMemoryStore(cfg.MaxTables, cfg.TableIdleTTL, mock)
	srv := httptest.NewServer(New(st, cfg, mock).Handler())
	t.Cleanup(func() {
		srv.Close()
		st.CloseAll()
	})
	return &harness{srv: srv, store: st, clock: mock}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func (h *harness) newGame(t *testing.T) newGameRes {
	t.Helper()
	values := fixedValues
	res := h.do(t, http.MethodPost, "/game/new", newGameReq{Values: &values}, "")
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var out newGameRes
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func (h *harness) pick(t *testing.T, g newGameRes, row, col int) table.View {
	t.Helper()
	res := h.do(t, http.MethodPost, "/game/"+g.GameID+"/select", map[string]int{"row": row, "col": col}, g.Token)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var v table.View
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func decodeErr(t *testing.T, res *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body.Error
}

func TestNotFoundEscapesPath(t *testing.T) {
	h := newHarness(t, 0)
	res := h.do(t, http.MethodGet, "/no%22such%5Cpage", nil, "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	var body struct {
		Error string `json:"error"`
		Path  string `json:"path"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "not_found", body.Error)
	assert.Equal(t, `/no"such\page`, body.Path)
}

func TestHealthAndIndex(t *testing.T) {
	h := newHarness(t, 0)

	res := h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = h.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")

	res = h.do(t, http.MethodGet, "/play", nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
}

func TestNewGameShuffledByDefault(t *testing.T) {
	h := newHarness(t, 0)
	res := h.do(t, http.MethodPost, "/game/new", nil, "")
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var out newGameRes
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.NotEmpty(t, out.GameID)
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, h.clock.Now().Add(time.Hour).Unix(), out.ExpiresAt.Unix())
	assert.Equal(t, out.GameID, out.State.GameID)
	assert.Equal(t, game.Player1, out.State.CurrentPlayer)
	assert.Equal(t, 1, h.store.Len())
}

func TestNewGameRejectsInvalidBoard(t *testing.T) {
	h := newHarness(t, 0)
	bad := fixedValues
	bad[0][0] = 8
	res := h.do(t, http.MethodPost, "/game/new", newGameReq{Values: &bad}, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_board", decodeErr(t, res))
	assert.Equal(t, 0, h.store.Len())
}

func TestNewGameWhenStoreFull(t *testing.T) {
	h := newHarness(t, 1)
	h.newGame(t)
	res := h.do(t, http.MethodPost, "/game/new", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "too_many_games", decodeErr(t, res))
}

func TestNewGameEvictsAbandonedGames(t *testing.T) {
	h := newHarness(t, 2)
	first := h.newGame(t)
	h.clock.Add(time.Minute)
	second := h.newGame(t)
	h.pick(t, first, 0, 0)
	h.pick(t, second, 0, 0)

	h.clock.Add(10 * time.Minute)
	res := h.do(t, http.MethodPost, "/game/new", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	h.clock.Add(48 * time.Hour)
	res = h.do(t, http.MethodPost, "/game/new", nil, "")
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, 2, h.store.Len())

	res = h.do(t, http.MethodGet, "/game/"+first.GameID, nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSelectMatchAndMismatch(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)

	v := h.pick(t, g, 0, 0)
	assert.Equal(t, 5, v.Tiles[0][0].Value)
	v = h.pick(t, g, 1, 1)
	assert.True(t, v.Tiles[1][1].Revealed)
	assert.Equal(t, game.Score{Player1: 1}, v.Score)
	assert.Equal(t, game.Player1, v.CurrentPlayer)

	h.pick(t, g, 0, 1)
	v = h.pick(t, g, 0, 2)
	assert.Equal(t, game.Player2, v.CurrentPlayer)
	assert.True(t, v.Tiles[0][1].Shown)

	h.clock.Add(game.HideDelay)
	require.Eventually(t, func() bool {
		res := h.do(t, http.MethodGet, "/game/"+g.GameID, nil, "")
		var v table.View
		if json.NewDecoder(res.Body).Decode(&v) != nil {
			return false
		}
		return !v.Tiles[0][1].Shown && !v.Tiles[0][2].Shown
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSelectValidation(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)
	other := h.newGame(t)
	path := "/game/" + g.GameID + "/select"

	res := h.do(t, http.MethodPost, path, map[string]int{"row": 0, "col": 0}, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = h.do(t, http.MethodPost, path, map[string]int{"row": 0, "col": 0}, other.Token)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_token", decodeErr(t, res))

	res = h.do(t, http.MethodPost, path, map[string]int{"row": 4, "col": 0}, g.Token)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "out_of_range", decodeErr(t, res))

	res = h.do(t, http.MethodPost, path, map[string]int{"row": 0, "col": -1}, g.Token)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = h.do(t, http.MethodPost, path, map[string]int{"row": 1}, g.Token)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "missing_coordinates", decodeErr(t, res))

	// query-string token works too
	res = h.do(t, http.MethodPost, path+"?token="+g.Token, map[string]int{"row": 0, "col": 0}, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestExpiredTokenRejected(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)
	h.clock.Add(time.Hour + time.Minute)

	res := h.do(t, http.MethodPost, "/game/"+g.GameID+"/select", map[string]int{"row": 0, "col": 0}, g.Token)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestUnknownGame(t *testing.T) {
	h := newHarness(t, 0)
	res := h.do(t, http.MethodGet, "/game/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDeleteGame(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)

	res := h.do(t, http.MethodDelete, "/game/"+g.GameID, nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = h.do(t, http.MethodDelete, "/game/"+g.GameID, nil, g.Token)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = h.do(t, http.MethodGet, "/game/"+g.GameID, nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, 0, h.store.Len())
}

func TestFullGameOverHTTP(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)

	// row, col of each tile of a pair
	pairs := [][4]int{
		{0, 0, 1, 1}, {0, 1, 2, 3}, {0, 2, 2, 2}, {0, 3, 2, 1},
		{1, 0, 3, 0}, {1, 2, 3, 1}, {1, 3, 3, 2}, {2, 0, 3, 3},
	}
	var v table.View
	for _, p := range pairs {
		h.pick(t, g, p[0], p[1])
		v = h.pick(t, g, p[2], p[3])
	}
	assert.True(t, v.Over)
	assert.Equal(t, game.OutcomePlayer1, v.Winner)
	assert.Equal(t, game.Score{Player1: 8}, v.Score)

	// clicks after the end are ignored
	v = h.pick(t, g, 0, 0)
	assert.Equal(t, game.Score{Player1: 8}, v.Score)
}

func wsURL(h *harness, id string) string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/game/" + id + "/events"
}

func readEvent(t *testing.T, conn *websocket.Conn) table.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e table.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestEventsStream(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h, g.GameID), nil)
	require.NoError(t, err)
	defer conn.Close()

	e := readEvent(t, conn)
	assert.Equal(t, table.EventState, e.Type)
	require.NotNil(t, e.State)
	assert.Equal(t, g.GameID, e.State.GameID)

	h.pick(t, g, 0, 0)
	h.pick(t, g, 0, 1)

	e = readEvent(t, conn)
	assert.Equal(t, table.EventTileShown, e.Type)
	require.NotNil(t, e.Pos)
	assert.Equal(t, game.Pos{Row: 0, Col: 0}, *e.Pos)
	assert.Equal(t, 5, e.Value)
	e = readEvent(t, conn)
	assert.Equal(t, table.EventTileShown, e.Type)
	assert.Equal(t, 3, e.Value)

	h.clock.Add(game.HideDelay)
	e = readEvent(t, conn)
	assert.Equal(t, table.EventTilesHidden, e.Type)
	assert.Equal(t, []game.Pos{{Row: 0, Col: 0}, {Row: 0, Col: 1}}, e.Tiles)

	// closing the game closes the stream
	res := h.do(t, http.MethodDelete, "/game/"+g.GameID, nil, g.Token)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestStreamEndFrameTellsDropFromClose(t *testing.T) {
	values := fixedValues
	tb, err := table.New("frames", &values, clock.NewMock())
	require.NoError(t, err)

	assert.Equal(t,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "fell behind"),
		streamEndFrame(tb))

	tb.Close()
	assert.Equal(t,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "game closed"),
		streamEndFrame(tb))
}

func TestEventsUnknownGame(t *testing.T) {
	h := newHarness(t, 0)
	_, res, err := websocket.DefaultDialer.Dial(wsURL(h, "nope"), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t, 0)
	g := h.newGame(t)
	hdr := http.Header{"Origin": []string{"http://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL(h, g.GameID), hdr)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
