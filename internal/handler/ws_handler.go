package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/service"
	"github.com/prepscuola/simulazioni-backend/internal/session"
	ws "github.com/prepscuola/simulazioni-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionDriver runs live attempts.
type SessionDriver interface {
	Start(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (*session.Snapshot, error)
	Act(ctx context.Context, p *model.Principal, snap *session.Snapshot, action session.Action) (*service.ActOutcome, error)
}

// WSHandler streams a live attempt: client actions in, rendered state out,
// with the section timer ticking server-side.
type WSHandler struct {
	sessions SessionDriver
	log      zerolog.Logger
	upgrader websocket.Upgrader
	tick     time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionDriver, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		tick:     time.Second,
	}
}

// SimulationStream godoc
// WS /ws/v1/simulations/:id/stream?token=
// Starts or resumes the caller's attempt and drives it until submission.
func (h *WSHandler) SimulationStream(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// Gate before upgrading so refusals are plain HTTP errors.
	snap, err := h.sessions.Start(c.Request.Context(), p, simulationID)
	if err != nil {
		failWith(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", p.UserID.String()).
		Str("simulation_id", simulationID.String()).
		Str("attempt_id", snap.AttemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &stream{h: h, conn: conn, p: p, snap: snap, log: wsLog}
	if err := ws.WriteTyped(conn, ws.NewStateResponse(snap, session.EventNone)); err != nil {
		return
	}
	s.run(ctx)
}

// stream owns one connection. All writes and all controller calls happen on
// the run goroutine; the reader only forwards decoded requests.
type stream struct {
	h    *WSHandler
	conn *websocket.Conn
	p    *model.Principal
	snap *session.Snapshot
	log  zerolog.Logger
}

func (s *stream) run(ctx context.Context) {
	incoming := make(chan ws.Request)
	go s.read(ctx, incoming)

	ticker := time.NewTicker(s.h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-incoming:
			if !ok {
				return
			}
			if done := s.handle(ctx, req); done {
				return
			}
		case <-ticker.C:
			if done := s.apply(ctx, session.Action{Type: session.ActionTick, Seconds: 1}); done {
				return
			}
		}
	}
}

func (s *stream) read(ctx context.Context, out chan<- ws.Request) {
	defer close(out)
	for {
		var req ws.Request
		if err := ws.ReadJSON(s.conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}
		select {
		case out <- req:
		case <-ctx.Done():
			return
		}
	}
}

// handle processes one client request and reports whether the stream is over.
func (s *stream) handle(ctx context.Context, req ws.Request) bool {
	switch req.Type {
	case ws.ActionPing:
		_ = ws.WriteTyped(s.conn, ws.PongResponse{Event: ws.EventPong})
		return false
	case session.ActionTick, session.ActionTimeout:
		// The clock belongs to the server.
		_ = ws.WriteError(s.conn, string(response.ErrActionRejected), response.GetMessage(response.ErrActionRejected))
		return false
	}
	return s.apply(ctx, req)
}

// apply runs one action through the controller and pushes the outcome.
func (s *stream) apply(ctx context.Context, action session.Action) bool {
	out, err := s.h.sessions.Act(ctx, s.p, s.snap, action)
	if out != nil {
		s.snap = out.Snapshot
	}
	if err != nil {
		s.log.Error().Err(err).Str("action", string(action.Type)).Msg("Session action failed")
		_, code := classify(err)
		_ = ws.WriteError(s.conn, string(code), response.GetMessage(code))
		return false
	}

	if out.Result != nil {
		s.log.Info().
			Str("result_id", out.Result.ID.String()).
			Bool("timed_out", s.snap.State.Submission != nil && s.snap.State.Submission.TimedOut).
			Msg("Attempt submitted")
		_ = ws.WriteTyped(s.conn, ws.NewStateResponse(s.snap, out.Event))
		_ = ws.WriteTyped(s.conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Result: out.Result})
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "submitted"),
			time.Now().Add(time.Second))
		return true
	}

	if err := ws.WriteTyped(s.conn, ws.NewStateResponse(s.snap, out.Event)); err != nil {
		s.log.Debug().Err(err).Msg("Write failed")
		return true
	}
	return false
}
