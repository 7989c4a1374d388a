package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/app"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/domain"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/minimax"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	s := app.NewService(app.WithEngine(minimax.New(minimax.WithLogger(zerolog.Nop()))))
	h := NewServer(s, WithEngine(minimax.New(minimax.WithStrict(true), minimax.WithLogger(zerolog.Nop()))))
	return s, h
}

func TestIndexPage(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<form") || !strings.Contains(body, "action=\"/game\"") {
		t.Fatalf("index should contain create form; got body: %q", body)
	}
	if !strings.Contains(body, "name=\"level\"") {
		t.Fatalf("index should offer computer levels; got body: %q", body)
	}
}

func TestCreateRedirectsToGame(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("POST", "/game", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther && rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc := rr.Result().Header.Get("Location")
	if !strings.HasPrefix(loc, "/game/") {
		t.Fatalf("expected redirect to /game/{id}, got %q", loc)
	}
}

func TestCreateComputerGameSeatsCreator(t *testing.T) {
	svc, h := newTestServer(t)
	form := url.Values{"mode": {"computer"}, "side": {"O"}, "level": {"perfect"}}
	req := httptest.NewRequest("POST", "/game", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	id := strings.TrimPrefix(rr.Result().Header.Get("Location"), "/game/")
	gs, ok := svc.Get(id)
	require.True(t, ok)
	assert.Equal(t, app.ComputerID, gs.X)
	assert.NotEmpty(t, gs.O)
	assert.Equal(t, 1, gs.Game.Moves, "computer opens as X")

	var pid string
	for _, c := range rr.Result().Cookies() {
		if c.Name == "player_id" {
			pid = c.Value
		}
	}
	assert.Equal(t, gs.O, pid)
}

func TestCreateRejectsUnknownLevel(t *testing.T) {
	_, h := newTestServer(t)
	form := url.Values{"mode": {"computer"}, "level": {"genius"}}
	req := httptest.NewRequest("POST", "/game", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGamePageSetsCookieAndAutoClaims(t *testing.T) {
	svc, h := newTestServer(t)
	// Create a game via service to know ID
	gs, _ := svc.CreateGame()

	req := httptest.NewRequest("GET", "/game/"+url.PathEscape(gs.ID), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	// Cookie set
	cookies := rr.Result().Cookies()
	var playerID string
	for _, c := range cookies {
		if c.Name == "player_id" {
			playerID = c.Value
			break
		}
	}
	if playerID == "" {
		t.Fatalf("expected player_id cookie to be set")
	}
	// Auto-claimed seat
	latest, ok := svc.Get(gs.ID)
	if !ok || (latest.X != playerID && latest.O != playerID) {
		t.Fatalf("expected auto-claim X or O; have X=%q O=%q pid=%q", latest.X, latest.O, playerID)
	}
	// SSE wiring present
	body := rr.Body.String()
	if !strings.Contains(body, "hx-ext=\"sse\"") || !strings.Contains(body, "/game/"+gs.ID+"/events") {
		t.Fatalf("expected SSE wiring in page; got body: %q", body)
	}
	if !strings.Contains(body, "X to move") {
		t.Fatalf("expected status line; got body: %q", body)
	}
}

func TestJoinEndpointReturnsBoardFragment(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame()
	// First GET to auto-claim X for p1
	req1 := httptest.NewRequest("GET", "/game/"+gs.ID, nil)
	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, req1)
	p2 := &http.Cookie{Name: "player_id", Value: "p2"}
	form := url.Values{}
	req := httptest.NewRequest("POST", "/game/"+gs.ID+"/join", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(p2)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "id=\"board\"") {
		t.Fatalf("expected board fragment, got %q", rr.Body.String())
	}
	latest, _ := svc.Get(gs.ID)
	if latest.O != "p2" && latest.X != "p2" { // allow if X was free
		t.Fatalf("expected seat for p2, got X=%q O=%q", latest.X, latest.O)
	}
}

func postPlay(h http.Handler, id, player, r, c string) *httptest.ResponseRecorder {
	form := url.Values{"r": {r}, "c": {c}}
	req := httptest.NewRequest("POST", "/game/"+id+"/play", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "player_id", Value: player})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPlayEndpointUpdatesStateAndReturnsFragment(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame()
	// Assign X and O
	svc.Join(gs.ID, "p1")
	svc.Join(gs.ID, "p2")

	rr := postPlay(h, gs.ID, "p1", "0", "0")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "id=\"board\"") {
		t.Fatalf("expected board fragment, got %q", rr.Body.String())
	}
	latest, _ := svc.Get(gs.ID)
	if latest.Game.Moves != 1 {
		t.Fatalf("expected move applied, moves=%d", latest.Game.Moves)
	}
}

func TestPlayEndpointReportsErrors(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame()
	svc.Join(gs.ID, "p1")
	svc.Join(gs.ID, "p2")

	cases := []struct {
		player, r, c string
		want         string
	}{
		{"p2", "0", "0", "Not your turn"},
		{"p3", "0", "0", "You are a spectator"},
		{"p1", "x", "0", "Out of bounds"},
		{"p1", "3", "0", "Out of bounds"},
	}
	for _, tc := range cases {
		rr := postPlay(h, gs.ID, tc.player, tc.r, tc.c)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), tc.want)
	}

	postPlay(h, gs.ID, "p1", "1", "1")
	rr := postPlay(h, gs.ID, "p2", "1", "1")
	assert.Contains(t, rr.Body.String(), "Cell is occupied")
}

func TestPlayAgainstComputer(t *testing.T) {
	svc, h := newTestServer(t)
	gs, err := svc.CreateComputerGame(domain.X, app.LevelPerfect)
	require.NoError(t, err)
	svc.Join(gs.ID, "human")

	rr := postPlay(h, gs.ID, "human", "0", "0")
	require.Equal(t, http.StatusOK, rr.Code)
	latest, _ := svc.Get(gs.ID)
	assert.Equal(t, 2, latest.Game.Moves)
	assert.Equal(t, domain.O, latest.Game.Board.At(1, 1))
}

func TestHintEndpoint(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame()
	svc.Join(gs.ID, "p1")
	svc.Join(gs.ID, "p2")
	postPlay(h, gs.ID, "p1", "0", "0")
	postPlay(h, gs.ID, "p2", "2", "2")
	postPlay(h, gs.ID, "p1", "0", "1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/game/"+gs.ID+"/hint", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got hintResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "O", got.Side)
	assert.Equal(t, 0, got.Row)
	assert.Equal(t, 2, got.Col)
	assert.Len(t, got.Scores, 6)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/game/missing/hint", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func postBestAction(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/best-action", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBestActionAPI(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("winning move", func(t *testing.T) {
		rr := postBestAction(h, `{"board":"XX./OO./..."}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var got bestActionResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "X", got.Side)
		assert.Equal(t, 0, got.Row)
		assert.Equal(t, 2, got.Col)
		assert.Equal(t, 1, got.Value)
		assert.Len(t, got.Scores, 5)
		assert.Positive(t, got.Nodes)
	})

	t.Run("terminal board", func(t *testing.T) {
		rr := postBestAction(h, `{"board":"XOX/XOO/OXX"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("impossible board", func(t *testing.T) {
		rr := postBestAction(h, `{"board":"XX./.../..."}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, body := range []string{`{"board":"XX"}`, `not json`} {
			rr := postBestAction(h, body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		}
	})
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, h := newTestServer(t)
	// create a game via POST
	reqCreate := httptest.NewRequest("POST", "/game", nil)
	rrCreate := httptest.NewRecorder()
	h.ServeHTTP(rrCreate, reqCreate)
	loc := rrCreate.Result().Header.Get("Location")
	if loc == "" {
		t.Fatalf("missing redirect location")
	}
	// Request SSE
	req := httptest.NewRequest("GET", loc+"/events", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	ct := rr.Result().Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/event-stream") {
		io.Copy(io.Discard, rr.Result().Body)
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
}

func TestEventsUnknownGame(t *testing.T) {
	svc, h := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("GET", "/game/does-not-exist/events", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	_, ok := svc.Get("does-not-exist")
	assert.False(t, ok, "events must not register a game")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/game/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateFromPostedBoard(t *testing.T) {
	svc, h := newTestServer(t)
	form := url.Values{"mode": {"pvp"}, "board": {"XX./OO./..."}}
	req := httptest.NewRequest("POST", "/game", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	id := strings.TrimPrefix(rr.Result().Header.Get("Location"), "/game/")
	gs, ok := svc.Get(id)
	require.True(t, ok)
	assert.Equal(t, "XX./OO./...", gs.Game.Board.String())
	assert.Equal(t, 4, gs.Game.Moves)

	for _, bad := range []string{"XX./.../...", "XQ./.../..."} {
		form := url.Values{"mode": {"pvp"}, "board": {bad}}
		req := httptest.NewRequest("POST", "/game", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestSSEDataFoldsLines(t *testing.T) {
	assert.Equal(t, "a\ndata: b\ndata: c", string(sseData([]byte("a\nb\nc"))))
}

func TestWebsocketPushesBoards(t *testing.T) {
	svc, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	gs, _ := svc.CreateGame()
	svc.Join(gs.ID, "p1")
	svc.Join(gs.ID, "p2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/game/"+gs.ID+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	var msg boardMessage
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	assert.Equal(t, "board", msg.Type)
	assert.Equal(t, ".../.../...", msg.Board)
	assert.Equal(t, "X to move", msg.Status)

	// The handler subscribes before the first write, so this move is delivered.
	_, err = svc.Play(gs.ID, "p1", 1, 1)
	require.NoError(t, err)
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	assert.Equal(t, ".../.X./...", msg.Board)
	assert.Equal(t, "O to move", msg.Status)
	assert.Equal(t, 1, msg.Moves)

	c.Close(websocket.StatusNormalClosure, "")
}

func TestWebsocketSeesMoveDuringConnect(t *testing.T) {
	svc, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	gs, _ := svc.CreateGame()
	svc.Join(gs.ID, "p1")
	svc.Join(gs.ID, "p2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	played := make(chan error, 1)
	go func() {
		_, err := svc.Play(gs.ID, "p1", 0, 0)
		played <- err
	}()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/game/"+gs.ID+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()
	require.NoError(t, <-played)

	// The move lands in the first snapshot or in a later push, never neither.
	var msg boardMessage
	for msg.Moves != 1 {
		require.NoError(t, wsjson.Read(ctx, c, &msg))
	}
	assert.Equal(t, "X../.../...", msg.Board)
	c.Close(websocket.StatusNormalClosure, "")
}

func TestWebsocketUnknownGame(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/game/missing/ws", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
