package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/app"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/domain"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/minimax"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	svc       *app.Service
	engine    *minimax.Engine
	tpl       *templates
	heartbeat time.Duration
}

func (h *handlers) renderBoard(gs app.GameState, errMsg string) []byte {
	return renderTemplate(h.tpl.board, newBoardData(gs, errMsg))
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.index, nil))
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	var gs *app.GameState
	var err error
	switch r.Form.Get("mode") {
	case "", "pvp":
		b := domain.NewBoard()
		if text := r.Form.Get("board"); text != "" {
			parsed, perr := domain.ParseBoard(text)
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			b = parsed
		}
		gs, err = h.svc.CreateGameFrom(b)
		if errors.Is(err, domain.ErrInvalidState) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	case "computer":
		side := domain.X
		if r.Form.Get("side") == "O" {
			side = domain.O
		}
		level, lerr := app.ParseLevel(r.Form.Get("level"))
		if lerr != nil {
			http.Error(w, lerr.Error(), http.StatusBadRequest)
			return
		}
		gs, err = h.svc.CreateComputerGame(side, level)
		if err == nil {
			// seat the creator right away so the computer's seat is the other one
			pid := ensurePlayerCookie(w, r)
			_, _, _ = h.svc.Join(gs.ID, pid)
		}
	default:
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("create game")
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// ensure cookie and auto-claim seat
	pid := ensurePlayerCookie(w, r)
	_, _, _ = h.svc.Join(id, pid)

	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	// Render page with embedded board container
	_, _ = w.Write(renderTemplate(h.tpl.game, newBoardData(*gs, "")))
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_, gs, err := h.svc.Join(id, pid)
	if err != nil || gs == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(*gs, ""))
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	ri, rerr := strconv.Atoi(r.Form.Get("r"))
	ci, cerr := strconv.Atoi(r.Form.Get("c"))
	var gs *app.GameState
	var err error
	if rerr != nil || cerr != nil {
		err = domain.ErrOutOfBounds
	} else {
		gs, err = h.svc.Play(id, pid, ri, ci)
	}
	var errMsg string
	if err != nil {
		if gs == nil {
			if g, ok := h.svc.Get(id); ok {
				gs = g
			}
		}
		switch {
		case errors.Is(err, app.ErrNotYourTurn):
			errMsg = "Not your turn"
		case errors.Is(err, app.ErrNotAPlayer):
			errMsg = "You are a spectator"
		case errors.Is(err, domain.ErrIllegalMove):
			errMsg = "Cell is occupied"
		case errors.Is(err, domain.ErrOutOfBounds):
			errMsg = "Out of bounds"
		case errors.Is(err, domain.ErrGameOver):
			errMsg = "Game is over"
		default:
			log.Error().Err(err).Str("game", id).Msg("play")
			errMsg = "Invalid move"
		}
	}
	if gs == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(*gs, errMsg))
}

type hintResponse struct {
	Side   string          `json:"side"`
	Row    int             `json:"row"`
	Col    int             `json:"col"`
	Value  int             `json:"value"`
	Scores []minimax.Score `json:"scores"`
}

func (h *handlers) hint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hint, err := h.svc.Hint(id)
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, domain.ErrTerminalState):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, hintResponse{
		Side:   hint.Side.String(),
		Row:    hint.Action.Row,
		Col:    hint.Action.Col,
		Value:  hint.Value,
		Scores: hint.Scores,
	})
}

type bestActionRequest struct {
	Board string `json:"board"`
}

type bestActionResponse struct {
	Side   string          `json:"side"`
	Row    int             `json:"row"`
	Col    int             `json:"col"`
	Value  int             `json:"value"`
	Scores []minimax.Score `json:"scores"`
	Nodes  int64           `json:"nodes"`
}

// bestAction analyses a board posted as text, independent of any game.
func (h *handlers) bestAction(w http.ResponseWriter, r *http.Request) {
	var req bestActionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	b, err := domain.ParseBoard(req.Board)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.engine.Evaluate(b)
	switch {
	case errors.Is(err, domain.ErrTerminalState):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, bestActionResponse{
		Side:   b.PlayerToMove().String(),
		Row:    res.Action.Row,
		Col:    res.Action.Col,
		Value:  res.Value,
		Scores: res.Scores,
		Nodes:  res.Nodes,
	})
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	// heartbeat ticker
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	// Initial flush of headers
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case gs, ok := <-ch:
			if !ok {
				return
			}
			// Emit board event
			_, _ = fmt.Fprintf(w, "event: board\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", sseData(h.renderBoard(gs, "")))
			flusher.Flush()
		}
	}
}

// boardMessage is pushed to websocket clients on every update.
type boardMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Board  string `json:"board"`
	Status string `json:"status"`
	Moves  int    `json:"moves"`
}

func newBoardMessage(gs app.GameState) boardMessage {
	return boardMessage{
		Type:   "board",
		ID:     gs.ID,
		Board:  gs.Game.Board.String(),
		Status: statusText(gs.Game),
		Moves:  gs.Game.Moves,
	}
}

// ws pushes the current board and every later update as JSON.
func (h *handlers) ws(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, unsub, err := h.svc.Subscribe(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	// Snapshot after subscribing so no move falls between the two.
	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("game", id).Msg("websocket accept")
		return
	}
	defer c.CloseNow()

	// The client never sends; CloseRead cancels ctx when it goes away.
	ctx := c.CloseRead(r.Context())

	if err := wsjson.Write(ctx, c, newBoardMessage(*gs)); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case gs, ok := <-ch:
			if !ok {
				c.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if err := wsjson.Write(ctx, c, newBoardMessage(gs)); err != nil {
				return
			}
		}
	}
}

// sseData folds a multi-line payload onto SSE continuation lines.
func sseData(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\ndata: "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
