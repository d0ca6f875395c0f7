package restshim

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenwick-ai/agentrt/ids"
	"github.com/fenwick-ai/agentrt/runmanager"
	"github.com/fenwick-ai/agentrt/session"
)

// createRunRequest is the body of POST /v1/plugins/agents/run.
type createRunRequest struct {
	Task             string `json:"task" binding:"required"`
	AgentID          string `json:"agentId"`
	SessionID        string `json:"sessionId"`
	Tier             string `json:"tier"`
	EnableEscalation bool   `json:"enableEscalation"`
}

type createRunResponse struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	EventsURL string `json:"eventsUrl"`
	Status    string `json:"status"`
	StartedAt int64  `json:"startedAt"`
}

// handleCreateRun implements `POST /v1/plugins/agents/run`: it registers the
// run with the Run Manager and starts RunFunc in the background, returning
// immediately so the caller switches to the WS events stream.
func (s *Server) handleCreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	runID := newRunID()
	startedAt := nowUnixMilli()

	run := s.Manager.Create(runID, sessionID, req.Task, startedAt)
	run.StartedAt = startedAt
	s.trackAgentEvents(runID)
	abort := s.newAbort(runID)

	s.mu.Lock()
	s.runSessions[runID] = sessionID
	s.mu.Unlock()

	s.Manager.UpdateStatus(runID, session.RunRunning, nil)

	go func() {
		outcome := s.Run(runID, sessionID, req.Task, abort)
		if outcome.Err != nil {
			s.Manager.UpdateStatus(runID, session.RunFailed, func(r *session.Run) {
				r.Error = outcome.Err.Error()
				r.DurationMS = outcome.DurationMS
			})
			return
		}
		s.Manager.UpdateStatus(runID, session.RunCompleted, func(r *session.Run) {
			r.Summary = outcome.Answer
			r.TokensUsed = outcome.TokensUsed
			r.DurationMS = outcome.DurationMS
		})
	}()

	c.JSON(http.StatusOK, createRunResponse{
		RunID:     runID,
		SessionID: sessionID,
		EventsURL: "/v1/ws/plugins/agents/events/" + runID,
		Status:    string(session.RunRunning),
		StartedAt: startedAt,
	})
}

// handleGetRun implements `GET /v1/plugins/agents/run/:runId`.
func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.Manager.GetState(c.Param("runId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

type correctRequest struct {
	Message        string `json:"message" binding:"required"`
	TargetAgentID  string `json:"targetAgentId"`
}

type correctResponse struct {
	CorrectionID string   `json:"correctionId"`
	RoutedTo     []string `json:"routedTo"`
	Reason       string   `json:"reason"`
	Applied      bool     `json:"applied"`
}

// handleCorrect implements `POST /v1/plugins/agents/run/:runId/correct`.
func (s *Server) handleCorrect(c *gin.Context) {
	runID := c.Param("runId")
	if !s.Manager.Exists(runID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	var req correctRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	activeAgents, lastActive := s.activeAgents(runID)
	agentID, ok := s.Router.Route(runmanager.Correction{Text: req.Message, MentionedAgent: req.TargetAgentID}, activeAgents, lastActive)

	resp := correctResponse{CorrectionID: newCorrectionID(), Applied: ok}
	if ok {
		resp.RoutedTo = []string{agentID}
		resp.Reason = "routed to active agent"
	} else {
		resp.Reason = "no active agent to route to"
	}
	c.JSON(http.StatusOK, resp)
}

type stopRequest struct {
	Reason string `json:"reason"`
}

type stopResponse struct {
	Stopped     bool   `json:"stopped"`
	RunID       string `json:"runId"`
	FinalStatus string `json:"finalStatus"`
}

// handleStop implements `POST /v1/plugins/agents/run/:runId/stop`: it closes
// the run's abort channel, propagated into the orchestrator/loop's
// cancellation contract, and marks the run stopped.
func (s *Server) handleStop(c *gin.Context) {
	runID := c.Param("runId")
	var req stopRequest
	_ = c.ShouldBindJSON(&req)

	abort, ok := s.abortFor(runID)
	if ok {
		s.mu.Lock()
		select {
		case <-abort:
		default:
			close(abort)
		}
		delete(s.aborts, runID)
		s.mu.Unlock()
	}

	s.Manager.UpdateStatus(runID, session.RunStopped, func(r *session.Run) {
		r.Error = req.Reason
	})

	run, _ := s.Manager.GetState(runID)
	status := string(session.RunStopped)
	if run != nil {
		status = string(run.Status)
	}
	c.JSON(http.StatusOK, stopResponse{Stopped: ok, RunID: runID, FinalStatus: status})
}

// handleListSessions implements `GET /v1/plugins/agents/sessions`.
func (s *Server) handleListSessions(c *gin.Context) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	c.JSON(http.StatusOK, out)
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	CreatedAt int64  `json:"createdAt"`
}

// handleCreateSession implements `POST /v1/plugins/agents/sessions`.
func (s *Server) handleCreateSession(c *gin.Context) {
	sessionID := newSessionID()
	createdAt := nowUnixMilli()
	sess := &session.Session{SessionID: sessionID}

	s.sessionsMu.Lock()
	s.sessions[sessionID] = sess
	s.sessionsMu.Unlock()

	c.JSON(http.StatusOK, createSessionResponse{SessionID: sessionID, CreatedAt: createdAt})
}

// handleGetSession implements `GET /v1/plugins/agents/sessions/:id`.
func (s *Server) handleGetSession(c *gin.Context) {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[c.Param("id")]
	s.sessionsMu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleSessionEvents implements `GET /v1/plugins/agents/sessions/:id/events`,
// a point-in-time history read (the WS session stream is the live surface).
func (s *Server) handleSessionEvents(c *gin.Context) {
	sessionID := c.Param("id")
	s.sessionsMu.Lock()
	_, ok := s.sessions[sessionID]
	s.sessionsMu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var all []interface{}
	s.mu.Lock()
	for runID := range s.runSessions {
		if s.runSessions[runID] != sessionID {
			continue
		}
		for _, e := range s.Manager.GetEventBuffer(runID) {
			all = append(all, e)
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, all)
}

func newCorrectionID() string { return ids.NewCorrectionID() }
