// Package runmanager implements the registry of active runs, a durable
// cross-process cache of terminal run states, and the WS-facing event
// fan-out that late subscribers rely on.
package runmanager

import (
	"sync"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/session"
)

// StateStore is the durable, cross-process key-value cache of terminal run
// states. The in-memory implementation below is the default; production
// deployments may back it with Redis or an equivalent.
type StateStore interface {
	Put(runID string, run *session.Run)
	Get(runID string) (*session.Run, bool)
}

// memStateStore is a process-local StateStore, safe for concurrent use.
type memStateStore struct {
	mu   sync.RWMutex
	runs map[string]*session.Run
}

// NewMemStateStore returns a process-local StateStore.
func NewMemStateStore() StateStore {
	return &memStateStore{runs: make(map[string]*session.Run)}
}

func (s *memStateStore) Put(runID string, run *session.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[runID] = &cp
}

func (s *memStateStore) Get(runID string) (*session.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Manager is the Run Manager: an in-memory registry of active runs backed
// by a durable StateStore for terminal ones, plus the Event Bus listener
// bookkeeping the REST/WS surfaces build on.
type Manager struct {
	mu       sync.RWMutex
	active   map[string]*session.Run
	sessions map[string][]string // sessionID -> runIDs, append order

	state StateStore
	bus   *events.Bus
}

// New returns a Manager backed by bus for event fan-out and state for
// terminal-run durability. Pass nil for bus to use the Manager without live
// event delivery (e.g. in tests that only exercise the registry).
func New(bus *events.Bus, state StateStore) *Manager {
	if state == nil {
		state = NewMemStateStore()
	}
	return &Manager{
		active:   make(map[string]*session.Run),
		sessions: make(map[string][]string),
		state:    state,
		bus:      bus,
	}
}

// Create registers a new pending Run under sessionID. orchestratorTask is
// recorded as the Run's Task for later inspection; the orchestrator itself
// is driven by the caller, not by the Manager — the Manager's role is
// bookkeeping, not execution.
func (m *Manager) Create(runID, sessionID, orchestratorTask string, startedAt int64) *session.Run {
	run := &session.Run{
		RunID:     runID,
		SessionID: sessionID,
		Task:      orchestratorTask,
		Status:    session.RunPending,
	}
	m.mu.Lock()
	m.active[runID] = run
	m.sessions[sessionID] = append(m.sessions[sessionID], runID)
	m.mu.Unlock()
	return run
}

// Exists reports whether runID is currently tracked, active or terminal.
func (m *Manager) Exists(runID string) bool {
	m.mu.RLock()
	_, active := m.active[runID]
	m.mu.RUnlock()
	if active {
		return true
	}
	_, ok := m.state.Get(runID)
	return ok
}

// Get returns the live in-memory Run, if still active.
func (m *Manager) Get(runID string) (*session.Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.active[runID]
	return r, ok
}

// GetState returns the durable terminal state for runID if the run has
// completed, failed, or stopped and been evicted from the active map,
// falling back to the active map for runs still in flight.
func (m *Manager) GetState(runID string) (*session.Run, bool) {
	if r, ok := m.Get(runID); ok {
		return r, true
	}
	return m.state.Get(runID)
}

// UpdateStatus transitions runID to status. Terminal statuses move the run
// out of the active map and into the durable StateStore.
func (m *Manager) UpdateStatus(runID string, status session.RunStatus, fields func(*session.Run)) {
	m.mu.Lock()
	run, ok := m.active[runID]
	if !ok {
		m.mu.Unlock()
		return
	}
	run.Status = status
	if fields != nil {
		fields(run)
	}
	terminal := isTerminal(status)
	if terminal {
		delete(m.active, runID)
	}
	cp := *run
	m.mu.Unlock()

	if terminal {
		m.state.Put(runID, &cp)
	}
}

func isTerminal(s session.RunStatus) bool {
	switch s {
	case session.RunCompleted, session.RunFailed, session.RunStopped:
		return true
	default:
		return false
	}
}

// AddListener registers cb for every event emitted on runID, returning a
// handle for RemoveListener.
func (m *Manager) AddListener(runID string, cb events.Listener) int {
	if m.bus == nil {
		return 0
	}
	return m.bus.AddListener(runID, cb)
}

// RemoveListener unregisters a run listener previously returned by
// AddListener.
func (m *Manager) RemoveListener(runID string, handle int) {
	if m.bus == nil {
		return
	}
	m.bus.RemoveListener(runID, handle)
}

// AddSessionListener registers cb for every event across sessionID's runs.
func (m *Manager) AddSessionListener(sessionID string, cb events.Listener) int {
	if m.bus == nil {
		return 0
	}
	return m.bus.AddSessionListener(sessionID, cb)
}

// RemoveSessionListener unregisters a session listener previously returned
// by AddSessionListener.
func (m *Manager) RemoveSessionListener(sessionID string, handle int) {
	if m.bus == nil {
		return
	}
	m.bus.RemoveSessionListener(sessionID, handle)
}

// GetEventBuffer returns the buffered replay events for runID.
func (m *Manager) GetEventBuffer(runID string) []events.Event {
	if m.bus == nil {
		return nil
	}
	return m.bus.GetBuffer(runID)
}
