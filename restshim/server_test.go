package restshim

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/filehistory"
	"github.com/fenwick-ai/agentrt/runmanager"
)

func testServer(run RunFunc) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	bus := events.New()
	mgr := runmanager.New(bus, nil)
	history := filehistory.NewStore("")
	s := NewServer(mgr, history, run)

	r := gin.New()
	s.Mount(r)
	return s, r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateRunReturnsRunIDAndEventsURL(t *testing.T) {
	done := make(chan struct{})
	_, r := testServer(func(runID, sessionID, task string, abort <-chan struct{}) RunOutcome {
		defer close(done)
		return RunOutcome{Success: true, Answer: "done"}
	})

	rec := doJSON(r, http.MethodPost, "/v1/plugins/agents/run", map[string]any{"task": "do the thing"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp createRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, "/v1/ws/plugins/agents/events/"+resp.RunID, resp.EventsURL)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunFunc was never invoked")
	}
}

func TestGetRunReturns404ForUnknownRun(t *testing.T) {
	_, r := testServer(func(string, string, string, <-chan struct{}) RunOutcome { return RunOutcome{} })
	rec := doJSON(r, http.MethodGet, "/v1/plugins/agents/run/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunReflectsCompletedStatusAfterRunFunc(t *testing.T) {
	release := make(chan struct{})
	_, r := testServer(func(runID, sessionID, task string, abort <-chan struct{}) RunOutcome {
		<-release
		return RunOutcome{Success: true, Answer: "the answer"}
	})

	rec := doJSON(r, http.MethodPost, "/v1/plugins/agents/run", map[string]any{"task": "x"})
	var created createRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	close(release)
	require.Eventually(t, func() bool {
		rec := doJSON(r, http.MethodGet, "/v1/plugins/agents/run/"+created.RunID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return body["Status"] == "completed"
	}, time.Second, 5*time.Millisecond)
}

func TestStopRunMarksRunStoppedAndClosesAbort(t *testing.T) {
	started := make(chan struct{})
	blocked := make(chan struct{})
	s, r := testServer(func(runID, sessionID, task string, abort <-chan struct{}) RunOutcome {
		close(started)
		<-abort
		close(blocked)
		return RunOutcome{Success: false}
	})

	rec := doJSON(r, http.MethodPost, "/v1/plugins/agents/run", map[string]any{"task": "x"})
	var created createRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	<-started
	stopRec := doJSON(r, http.MethodPost, "/v1/plugins/agents/run/"+created.RunID+"/stop", map[string]any{"reason": "user cancel"})
	require.Equal(t, http.StatusOK, stopRec.Code)

	var stopResp stopResponse
	require.NoError(t, json.Unmarshal(stopRec.Body.Bytes(), &stopResp))
	require.True(t, stopResp.Stopped)

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("abort channel was never observed closed by RunFunc")
	}
	_ = s
}

func TestCorrectRoutesToMentionedAgent(t *testing.T) {
	s, r := testServer(func(runID, sessionID, task string, abort <-chan struct{}) RunOutcome {
		<-abort
		return RunOutcome{}
	})

	rec := doJSON(r, http.MethodPost, "/v1/plugins/agents/run", map[string]any{"task": "x"})
	var created createRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Seed active agents directly, bypassing the bus, since this RunFunc never emits.
	s.mu.Lock()
	s.active[created.RunID] = []string{"writer", "research"}
	s.lastAgt[created.RunID] = "research"
	s.mu.Unlock()

	correctRec := doJSON(r, http.MethodPost, "/v1/plugins/agents/run/"+created.RunID+"/correct", map[string]any{
		"message":       "please fix this",
		"targetAgentId": "writer",
	})
	require.Equal(t, http.StatusOK, correctRec.Code)

	var resp correctResponse
	require.NoError(t, json.Unmarshal(correctRec.Body.Bytes(), &resp))
	require.True(t, resp.Applied)
	require.Equal(t, []string{"writer"}, resp.RoutedTo)

	doJSON(r, http.MethodPost, "/v1/plugins/agents/run/"+created.RunID+"/stop", nil)
}

func TestSessionCRUD(t *testing.T) {
	_, r := testServer(func(string, string, string, <-chan struct{}) RunOutcome { return RunOutcome{} })

	createRec := doJSON(r, http.MethodPost, "/v1/plugins/agents/sessions", nil)
	require.Equal(t, http.StatusOK, createRec.Code)
	var created createSessionResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	getRec := doJSON(r, http.MethodGet, "/v1/plugins/agents/sessions/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, getRec.Code)

	listRec := doJSON(r, http.MethodGet, "/v1/plugins/agents/sessions", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
}
