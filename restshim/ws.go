package restshim

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/ids"
	"github.com/fenwick-ai/agentrt/runmanager"
	"github.com/fenwick-ai/agentrt/session"
)

// MountWS registers the two WebSocket surfaces onto r.
func (s *Server) MountWS(r gin.IRouter) {
	ws := r.Group("/v1/ws/plugins/agents")
	ws.GET("/events/:runId", s.handleEventsWS)
	ws.GET("/session/:sessionId", s.handleSessionWS)
}

// clientMessage is the client->server frame shape for both WS surfaces.
type clientMessage struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	TargetAgentID string `json:"targetAgentId"`
	Reason        string `json:"reason"`
}

// handleEventsWS implements the per-run event stream: on connect it sends
// connection:ready, replays buffered events, then streams live ones.
func (s *Server) handleEventsWS(c *gin.Context) {
	runID := c.Param("runId")
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := c.Request.Context()

	if send(ctx, conn, map[string]any{"type": "connection:ready"}) != nil {
		return
	}
	for _, e := range s.Manager.GetEventBuffer(runID) {
		if send(ctx, conn, wireEvent(e)) != nil {
			return
		}
	}

	outbound := make(chan events.Event, 64)
	handle := s.Manager.AddListener(runID, func(e events.Event) {
		select {
		case outbound <- e:
		default:
		}
	})
	defer s.Manager.RemoveListener(runID, handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			s.handleEventsClientMessage(ctx, conn, runID, data)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case e := <-outbound:
			if send(ctx, conn, wireEvent(e)) != nil {
				return
			}
			if e.Type == events.TypeAgentEnd || e.Type == events.TypeAgentError {
				run, _ := s.Manager.GetState(runID)
				_ = send(ctx, conn, map[string]any{"type": "run:completed", "run": run})
			}
		}
	}
}

func (s *Server) handleEventsClientMessage(ctx context.Context, conn *websocket.Conn, runID string, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	switch msg.Type {
	case "user:correction":
		activeAgents, lastActive := s.activeAgents(runID)
		agentID, ok := s.Router.Route(runmanager.Correction{Text: msg.Message, MentionedAgent: msg.TargetAgentID}, activeAgents, lastActive)
		ack := map[string]any{"type": "correction:ack", "correctionId": ids.NewCorrectionID(), "applied": ok}
		if ok {
			ack["routedTo"] = []string{agentID}
		}
		_ = send(ctx, conn, ack)
	case "user:stop":
		if abort, ok := s.abortFor(runID); ok {
			s.mu.Lock()
			select {
			case <-abort:
			default:
				close(abort)
			}
			delete(s.aborts, runID)
			s.mu.Unlock()
		}
		s.Manager.UpdateStatus(runID, session.RunStopped, func(r *session.Run) { r.Error = msg.Reason })
	case "ping":
	}
}

// handleSessionWS implements the persistent session stream: on connect it
// sends connection:ready and a conversation:snapshot, then a deduplicated
// turn:snapshot on every turn mutation.
func (s *Server) handleSessionWS(c *gin.Context) {
	sessionID := c.Param("sessionId")
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := c.Request.Context()

	if send(ctx, conn, map[string]any{"type": "connection:ready"}) != nil {
		return
	}

	s.sessionsMu.Lock()
	sess := s.sessions[sessionID]
	s.sessionsMu.Unlock()
	var turns []*session.Turn
	if sess != nil {
		turns = sess.Turns
	}
	if send(ctx, conn, map[string]any{"type": "conversation:snapshot", "turns": turns}) != nil {
		return
	}

	turnEvents := map[string][]events.Event{}
	sentSig := map[string]string{}

	outbound := make(chan events.Event, 64)
	handle := s.Manager.AddSessionListener(sessionID, func(e events.Event) {
		select {
		case outbound <- e:
		default:
		}
	})
	defer s.Manager.RemoveSessionListener(sessionID, handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case e := <-outbound:
			if e.TurnID == "" {
				continue
			}
			turnEvents[e.TurnID] = append(turnEvents[e.TurnID], e)
			turn := runmanager.AssembleTurn(e.TurnID, session.TurnAssistant, turnEvents[e.TurnID])
			sig := runmanager.Signature(turn)
			if sentSig[e.TurnID] == sig {
				continue
			}
			sentSig[e.TurnID] = sig
			if send(ctx, conn, map[string]any{"type": "turn:snapshot", "turn": turn}) != nil {
				return
			}
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func wireEvent(e events.Event) map[string]any {
	return map[string]any{"type": "agent:event", "event": e}
}
