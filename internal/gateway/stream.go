package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/session"
)

// clientMessage is the envelope a connected client pushes: subscribe to
// a session, send keystrokes, or resize (§4.10).
type clientMessage struct {
	Type        string `json:"type"` // "subscribe" | "unsubscribe" | "input" | "resize"
	ProjectPath string `json:"projectPath"`
	SessionID   string `json:"sessionId"`
	Data        string `json:"data,omitempty"`
	Cols        int    `json:"cols,omitempty"`
	Rows        int    `json:"rows,omitempty"`
}

// serverMessage is the envelope the gateway pushes: terminal bytes or a
// confirmed state update (§4.10).
type serverMessage struct {
	Type               string `json:"type"` // "terminal_data" | "session_update" | "error"
	SessionID          string `json:"sessionId"`
	Data               string `json:"data,omitempty"`
	State              string `json:"state,omitempty"`
	AutoApprovalFailed bool   `json:"autoApprovalFailed,omitempty"`
	AutoApprovalReason string `json:"autoApprovalReason,omitempty"`
	Error              string `json:"error,omitempty"`
}

// inputRateLimit bounds how fast one connection may push input/resize
// messages, keeping one noisy subscriber from starving others sharing
// the same daemon process.
const inputRateLimit = 200 // messages/sec

// handleStream upgrades to a WebSocket and runs one client's streaming
// session: subscribe/unsubscribe to session ids, relay terminal_data and
// session_update outward, apply input/resize inward.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &streamConn{
		gw:      g,
		ws:      c,
		limiter: rate.NewLimiter(rate.Limit(inputRateLimit), inputRateLimit),
		subs:    make(map[string]*subscription),
	}
	defer conn.closeAll()

	go conn.eventUpdates(ctx, g.Orch.Bus())

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.send(ctx, serverMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if !conn.limiter.Allow() {
			continue
		}
		conn.handle(ctx, msg)
	}
}

// subscription tracks one session's byte-stream and event-bus fan-out
// for one client connection.
type subscription struct {
	sessionID string
	sess      *session.Session
	byteSubID int
	stopCh    chan struct{}
}

type streamConn struct {
	gw      *Gateway
	ws      *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*subscription
}

func (c *streamConn) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		c.subscribe(ctx, msg.ProjectPath, msg.SessionID)
	case "unsubscribe":
		c.unsubscribe(msg.SessionID)
	case "input":
		c.input(msg.ProjectPath, msg.SessionID, msg.Data)
	case "resize":
		c.resize(ctx, msg.ProjectPath, msg.SessionID, msg.Cols, msg.Rows)
	default:
		c.send(ctx, serverMessage{Type: "error", Error: "unknown message type " + msg.Type})
	}
}

func (c *streamConn) lookup(projectPath, sessionID string) (*session.Session, bool) {
	m := c.gw.Orch.ManagerFor(projectPath)
	return m.Get(sessionID)
}

// subscribe begins the ordering contract from this point: replay
// (handled inside Session.Subscribe) precedes any live byte (§4.4, I5).
func (c *streamConn) subscribe(ctx context.Context, projectPath, sessionID string) {
	sess, ok := c.lookup(projectPath, sessionID)
	if !ok {
		c.send(ctx, serverMessage{Type: "error", SessionID: sessionID, Error: "unknown session"})
		return
	}

	c.mu.Lock()
	if _, already := c.subs[sessionID]; already {
		c.mu.Unlock()
		return
	}
	byteSubID, byteCh := sess.Subscribe()
	stopCh := make(chan struct{})
	c.subs[sessionID] = &subscription{sessionID: sessionID, sess: sess, byteSubID: byteSubID, stopCh: stopCh}
	c.mu.Unlock()

	go c.pumpBytes(sessionID, sess, byteCh, stopCh)
}

func (c *streamConn) pumpBytes(sessionID string, sess *session.Session, byteCh <-chan []byte, stopCh chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case data, ok := <-byteCh:
			if !ok {
				return
			}
			c.send(ctx, serverMessage{Type: "terminal_data", SessionID: sessionID, Data: base64.StdEncoding.EncodeToString(data)})
		case <-stopCh:
			return
		}
	}
}

func (c *streamConn) unsubscribe(sessionID string) {
	c.mu.Lock()
	sub, ok := c.subs[sessionID]
	if ok {
		delete(c.subs, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.sess.Unsubscribe(sub.byteSubID)
	close(sub.stopCh)
}

func (c *streamConn) input(projectPath, sessionID, data string) {
	sess, ok := c.lookup(projectPath, sessionID)
	if !ok {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return
	}
	sess.Write(raw)
}

func (c *streamConn) resize(ctx context.Context, projectPath, sessionID string, cols, rows int) {
	sess, ok := c.lookup(projectPath, sessionID)
	if !ok {
		return
	}
	if cols <= 0 || rows <= 0 {
		return
	}
	if err := sess.Resize(cols, rows); err != nil {
		c.send(ctx, serverMessage{Type: "error", SessionID: sessionID, Error: err.Error()})
	}
}

func (c *streamConn) send(ctx context.Context, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.Write(writeCtx, websocket.MessageText, data)
}

func (c *streamConn) closeAll() {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()
	for _, s := range subs {
		s.sess.Unsubscribe(s.byteSubID)
		close(s.stopCh)
	}
}

// eventUpdates relays confirmed state transitions from the shared event
// bus out to this connection, filtered to subscribed session ids. It is
// started once per connection alongside the read loop.
func (c *streamConn) eventUpdates(ctx context.Context, bus *eventbus.Bus) {
	if bus == nil {
		return
	}
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != eventbus.KindStateTransition || ev.Transition == nil {
				continue
			}
			c.mu.Lock()
			_, subscribed := c.subs[ev.SessionID]
			c.mu.Unlock()
			if !subscribed {
				continue
			}
			c.send(ctx, serverMessage{
				Type:               "session_update",
				SessionID:          ev.SessionID,
				State:              string(ev.Transition.To),
				AutoApprovalFailed: ev.Transition.AutoApprovalFailed,
				AutoApprovalReason: ev.Transition.AutoApprovalReason,
			})
		case <-ctx.Done():
			return
		}
	}
}
