// Package server exposes live sessions over HTTP and websockets. It owns
// the session registry; the game coordinator itself knows nothing about
// transport.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vcsawant/bughouse-sub000/internal/cache"
	"github.com/vcsawant/bughouse-sub000/internal/game"
	"github.com/vcsawant/bughouse-sub000/internal/models"
	"github.com/vcsawant/bughouse-sub000/internal/rules"
)

// Server routes HTTP and websocket traffic to sessions.
type Server struct {
	registry  *Registry
	jwtSecret []byte
	gameMode  string
	clockMs   int64
	factory   rules.Factory
}

// Options configures a Server.
type Options struct {
	JWTSecret []byte
	GameMode  string
	ClockMs   int64
	// Factory defaults to the rules package's mode registry.
	Factory rules.Factory
}

// New builds a Server with an empty registry.
func New(opts Options) *Server {
	factory := opts.Factory
	if factory == nil {
		factory = rules.New
	}
	return &Server{
		registry:  NewRegistry(),
		jwtSecret: opts.JWTSecret,
		gameMode:  opts.GameMode,
		clockMs:   opts.ClockMs,
		factory:   factory,
	}
}

// Registry exposes the session registry, mainly for shutdown.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /games", s.handleCreateGame)
	mux.HandleFunc("GET /games/{id}/state", s.handleState)
	mux.HandleFunc("GET /games/{id}/raw", s.handleRawPosition)
	mux.HandleFunc("GET /games/{id}/ws", s.handleWebsocket)
	return mux
}

// createGameRequest assigns the four seats. All four occupants must be set
// before a session starts.
type createGameRequest struct {
	Mode    string                   `json:"mode,omitempty"`
	ClockMs int64                    `json:"clockMs,omitempty"`
	Seats   map[string]models.Player `json:"seats"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := game.Config{
		ID:      uuid.New(),
		Mode:    s.gameMode,
		ClockMs: s.clockMs,
		Factory: s.factory,
	}
	if req.Mode != "" {
		cfg.Mode = req.Mode
	}
	if req.ClockMs > 0 {
		cfg.ClockMs = req.ClockMs
	}
	for name, p := range req.Seats {
		seat, err := game.ParseSeat(name)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg.Seats[seat] = p
	}

	sess, err := game.NewSession(cfg)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	hub := NewHub()
	sess.BroadcastFn = hub.Broadcast
	sess.OnGameEnd = func(id uuid.UUID, rec *game.CompletionRecord) {
		s.onGameEnd(id)
	}
	s.registry.Add(&Entry{Session: sess, Hub: hub})
	sess.Start()

	logrus.WithField("session", cfg.ID).Info("session created")
	writeJSON(w, http.StatusCreated, map[string]string{"id": cfg.ID.String()})
}

// onGameEnd retires a finished session. Teardown happens off the actor
// goroutine; Close must not run on the session's own loop.
func (s *Server) onGameEnd(id uuid.UUID) {
	go func() {
		e, ok := s.registry.Get(id)
		if !ok {
			return
		}
		s.registry.Remove(id)
		e.Session.Close()
		// Hub stays open briefly so observers receive the game_over frame.
		time.AfterFunc(30*time.Second, e.Hub.Close)

		if cache.Rdb != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cache.MarkSessionComplete(ctx, id); err != nil {
				logrus.WithError(err).WithField("session", id).Warn("failed marking journal complete")
			}
		}
	}()
}

func (s *Server) entryFromRequest(w http.ResponseWriter, r *http.Request) (*Entry, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	e, ok := s.registry.Get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return e, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromRequest(w, r)
	if !ok {
		return
	}
	snap, err := e.Session.QueryState()
	if err != nil {
		httpError(w, http.StatusGone, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRawPosition serves the bot query interface: raw positions plus
// elapsed-corrected clocks.
func (s *Server) handleRawPosition(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromRequest(w, r)
	if !ok {
		return
	}
	raw, err := e.Session.QueryRawPosition()
	if err != nil {
		httpError(w, http.StatusGone, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

// clientMessage is one inbound websocket frame from a player.
type clientMessage struct {
	Type     string `json:"type"`
	Notation string `json:"notation,omitempty"`
	Piece    string `json:"piece,omitempty"`
	Square   string `json:"square,omitempty"`
	// Seat is the optional seat hint; required for dual-seat occupants.
	Seat string `json:"seat,omitempty"`
}

// serverMessage is a direct (non-broadcast) reply to one player frame.
type serverMessage struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Square  string   `json:"square,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromRequest(w, r)
	if !ok {
		return
	}

	playerID, err := playerIDFromToken(r.URL.Query().Get("token"), s.jwtSecret)
	if err != nil {
		httpError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket accept failed")
		return
	}

	ctx := r.Context()
	sub := e.Hub.subscribe()
	defer e.Hub.unsubscribe(sub)

	// Writer pump: hub frames out to the socket.
	go func() {
		for payload := range sub.send {
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	// Send the current state immediately on attach.
	if snap, err := e.Session.QueryState(); err == nil {
		s.reply(ctx, conn, game.Event{Type: game.EventStateUpdate, Snapshot: &snap})
	}

	// Reader loop: decode player frames into coordinator operations.
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: "malformed message"})
			continue
		}
		s.dispatch(ctx, conn, e.Session, playerID, msg)
	}
}

// dispatch routes one player frame to the coordinator and replies with any
// guard failure. Successful mutations surface via the hub broadcast.
func (s *Server) dispatch(ctx context.Context, conn *websocket.Conn, sess *game.Session, playerID uuid.UUID, msg clientMessage) {
	var hint *game.Seat
	if msg.Seat != "" {
		seat, err := game.ParseSeat(msg.Seat)
		if err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
			return
		}
		hint = &seat
	}

	switch msg.Type {
	case "make_move":
		if err := sess.MakeMove(playerID, msg.Notation, hint); err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
		}
	case "drop_piece":
		piece, err := rules.ParsePiece(msg.Piece)
		if err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
			return
		}
		if err := sess.DropPiece(playerID, piece, msg.Square, hint); err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
		}
	case "resign":
		if err := sess.Resign(playerID); err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
		}
	case "offer_draw":
		if err := sess.OfferDraw(playerID); err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
		}
	case "can_select":
		targets, err := sess.CanSelect(playerID, msg.Square, hint)
		if err != nil {
			s.reply(ctx, conn, serverMessage{Type: "error", Message: err.Error()})
			return
		}
		s.reply(ctx, conn, serverMessage{Type: "legal_targets", Square: msg.Square, Targets: targets})
	default:
		s.reply(ctx, conn, serverMessage{Type: "error", Message: "unknown message type"})
	}
}

func (s *Server) reply(ctx context.Context, conn *websocket.Conn, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = conn.Write(writeCtx, websocket.MessageText, payload)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Debug("failed writing response")
	}
}
