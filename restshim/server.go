// Package restshim is a thin REST + WebSocket surface over the core runtime.
// It is a reference transport binding, not a production API gateway: the
// core only consumes it through a handful of narrow interfaces, so swapping
// in gRPC or a message queue instead doesn't touch orchestrator/worker/loop
// code.
package restshim

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/filehistory"
	"github.com/fenwick-ai/agentrt/ids"
	"github.com/fenwick-ai/agentrt/runmanager"
	"github.com/fenwick-ai/agentrt/session"
)

// RunFunc drives one run to completion. Implementations wire in an
// orchestrator.Config and call orchestrator.Execute; restshim only needs
// the outcome shape below to update the Run Manager and reply to clients.
type RunFunc func(runID, sessionID, task string, abort <-chan struct{}) RunOutcome

// RunOutcome is the subset of an orchestrator.Result restshim persists back
// onto the Run Manager.
type RunOutcome struct {
	Success    bool
	Answer     string
	TokensUsed int
	DurationMS int64
	Err        error
}

// Server wires the Run Manager, File History, and a caller-supplied RunFunc
// into the REST/WS surface.
type Server struct {
	Manager *runmanager.Manager
	History *filehistory.Store
	Run     RunFunc
	Router  CorrectionRouter

	mu          sync.Mutex
	aborts      map[string]chan struct{}
	active      map[string][]string // runID -> agentIDs seen active, append order
	lastAgt     map[string]string   // runID -> last agent seen active
	runSessions map[string]string   // runID -> sessionID

	sessions   map[string]*session.Session
	sessionsMu sync.Mutex
}

// CorrectionRouter is the subset of runmanager.CorrectionRouter the server
// depends on.
type CorrectionRouter interface {
	Route(c runmanager.Correction, activeAgents []string, lastActiveAgent string) (agentID string, ok bool)
}

// NewServer returns a Server ready to have its routes mounted.
func NewServer(manager *runmanager.Manager, history *filehistory.Store, run RunFunc) *Server {
	return &Server{
		Manager:  manager,
		History:  history,
		Run:      run,
		Router:   runmanager.HeuristicRouter{},
		aborts:      make(map[string]chan struct{}),
		active:      make(map[string][]string),
		lastAgt:     make(map[string]string),
		runSessions: make(map[string]string),
		sessions:    make(map[string]*session.Session),
	}
}

// Mount registers every REST route onto r.
func (s *Server) Mount(r gin.IRouter) {
	agents := r.Group("/v1/plugins/agents")
	agents.POST("/run", s.handleCreateRun)
	agents.GET("/run/:runId", s.handleGetRun)
	agents.POST("/run/:runId/correct", s.handleCorrect)
	agents.POST("/run/:runId/stop", s.handleStop)
	agents.GET("/sessions", s.handleListSessions)
	agents.POST("/sessions", s.handleCreateSession)
	agents.GET("/sessions/:id", s.handleGetSession)
	agents.GET("/sessions/:id/events", s.handleSessionEvents)
}

// trackAgentEvents listens on a run's bus feed and keeps the active-agent
// bookkeeping handleCorrect needs, without the server having to understand
// orchestrator internals.
func (s *Server) trackAgentEvents(runID string) {
	s.Manager.AddListener(runID, func(e events.Event) {
		if e.Type != events.TypeAgentStart || e.AgentID == "" {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		seen := false
		for _, a := range s.active[runID] {
			if a == e.AgentID {
				seen = true
				break
			}
		}
		if !seen {
			s.active[runID] = append(s.active[runID], e.AgentID)
		}
		s.lastAgt[runID] = e.AgentID
	})
}

func (s *Server) activeAgents(runID string) ([]string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents := append([]string(nil), s.active[runID]...)
	return agents, s.lastAgt[runID]
}

func (s *Server) newAbort(runID string) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.aborts[runID] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) abortFor(runID string) (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.aborts[runID]
	return ch, ok
}

func nowUnixMilli() int64 { return time.Now().UnixMilli() }

func newRunID() string     { return ids.NewRunID() }
func newSessionID() string { return ids.NewSessionID() }
