package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/orchestrator"
	"github.com/cacd-dev/cacd/internal/session"
	"github.com/cacd-dev/cacd/internal/sessionstate"
)

func newTestGateway() (*Gateway, *authgate.Gate) {
	gate := authgate.New("test-token")
	orch := orchestrator.New(eventbus.New(), nil)
	gw := New(orch, gate, config.Default(), nil, nil, nil)
	return gw, gate
}

func authed(req *http.Request) *http.Request {
	req.Header.Set(authgate.HeaderName, "test-token")
	return req
}

func sessionConfigFixture(t *testing.T) session.Config {
	t.Helper()
	return session.Config{
		WorktreePath: t.TempDir(),
		AgentID:      "terminal",
		Strategy:     sessionstate.StrategyUnknown,
		Command:      "sh",
		Args:         []string{"-c", "echo hello; sleep 5"},
	}
}

func TestCreateListAndDestroySession(t *testing.T) {
	gw, _ := newTestGateway()
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()
	defer gw.Orch.Close()

	body, _ := json.Marshal(createSessionRequest{
		ProjectPath:  "/tmp/proj",
		WorktreePath: t.TempDir(),
		AgentID:      "terminal",
		Command:      "sh",
		Args:         []string{"-c", "sleep 5"},
	})
	req := authed(httptest.NewRequest(http.MethodPost, srv.URL+"/api/session", bytes.NewReader(body)))
	req.RequestURI = ""
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var created sessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if created.ID == "" {
		t.Fatal("expected a session id")
	}

	stateReq := authed(httptest.NewRequest(http.MethodGet, srv.URL+"/api/state", nil))
	stateReq.RequestURI = ""
	stateResp, err := http.DefaultClient.Do(stateReq)
	if err != nil {
		t.Fatalf("state request: %v", err)
	}
	var state stateResponse
	json.NewDecoder(stateResp.Body).Decode(&state)
	stateResp.Body.Close()
	if len(state.Projects) != 1 || len(state.Projects[0].Sessions) != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}

	destroyReq := authed(httptest.NewRequest(http.MethodDelete, srv.URL+"/api/session/"+created.ID+"?projectPath=/tmp/proj", nil))
	destroyReq.RequestURI = ""
	destroyResp, err := http.DefaultClient.Do(destroyReq)
	if err != nil {
		t.Fatalf("destroy request: %v", err)
	}
	if destroyResp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d", destroyResp.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	gw, _ := newTestGateway()
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()
	defer gw.Orch.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", resp.StatusCode)
	}
}

func TestStreamSubscribeReceivesTerminalData(t *testing.T) {
	gw, _ := newTestGateway()
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()
	defer gw.Orch.Close()

	m := gw.Orch.ManagerFor("/tmp/proj")
	sess, err := m.Create(sessionConfigFixture(t))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	wsURL := "ws" + srv.URL[len("http"):] + "/api/stream"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set(authgate.HeaderName, "test-token")
	c, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	sub := clientMessage{Type: "subscribe", ProjectPath: "/tmp/proj", SessionID: sess.ID}
	data, _ := json.Marshal(sub)
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	_, msg, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got serverMessage
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "terminal_data" || got.SessionID != sess.ID {
		t.Fatalf("unexpected message: %+v", got)
	}
}
