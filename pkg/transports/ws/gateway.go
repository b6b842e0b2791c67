// Package ws exposes tool invocation to devices over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/pluma/pkg/conversation"
	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/session"
)

type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any, conn *session.Conn) plugin.ActionResponse
}

type ToolLister interface {
	Enabled(names []string) []llm.ToolDeclaration
	Has(name string) bool
}

// TextHandler runs a conversational turn for a "text" frame.
type TextHandler interface {
	HandleText(ctx context.Context, conn *session.Conn, text string) (conversation.Reply, error)
}

type Config struct {
	AllowAnyOrigin bool
	AllowedOrigins []string
	// Functions limits which tools are listed and callable. Empty allows all.
	Functions  []string
	SendBuffer int
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader
	sessions *session.Registry
	invoker  Invoker
	tools    ToolLister
	text     TextHandler
	logger   *slog.Logger
	enabled  map[string]struct{}

	draining atomic.Bool
}

type Options struct {
	Config   Config
	Sessions *session.Registry
	Invoker  Invoker
	Tools    ToolLister
	// Text is optional; without it "text" frames are rejected.
	Text   TextHandler
	Logger *slog.Logger
}

func New(opts Options) *Gateway {
	cfg := opts.Config.withDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewRegistry(nil)
	}
	g := &Gateway{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: opts.Sessions,
		invoker:  opts.Invoker,
		tools:    opts.Tools,
		text:     opts.Text,
		logger:   opts.Logger,
	}
	if len(cfg.Functions) > 0 {
		g.enabled = make(map[string]struct{}, len(cfg.Functions))
		for _, name := range cfg.Functions {
			g.enabled[strings.TrimSpace(name)] = struct{}{}
		}
	}
	g.upgrader.CheckOrigin = g.checkOrigin
	return g
}

// SetDraining makes the gateway refuse new connections.
func (g *Gateway) SetDraining(v bool) {
	g.draining.Store(v)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("ws_upgrade_failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := newClient(conn, g.cfg.SendBuffer, g.logger)
	go c.loop()
	defer func() {
		cancel()
		c.wait()
		_ = c.close()
		if id := c.sessionID(); id != "" {
			removed := g.sessions.Detach(id)
			g.logger.Info("ws_session_closed", "session_id", id, "removed", removed)
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in Frame
		if err := json.Unmarshal(msg, &in); err != nil {
			c.send(Frame{Type: TypeError, Error: "invalid frame"})
			continue
		}
		switch in.Type {
		case TypeHello:
			sess, err := g.attach(c, in.SessionID, in.DeviceID)
			if err != nil {
				c.send(Frame{Type: TypeError, Error: err.Error()})
				continue
			}
			c.send(Frame{Type: TypeHello, SessionID: sess.ID})
		case TypeTools:
			c.send(Frame{Type: TypeTools, Tools: g.declarations()})
		case TypeToolCall:
			sess, err := g.attach(c, "", "")
			if err != nil {
				c.send(Frame{Type: TypeError, ID: in.ID, Error: err.Error()})
				continue
			}
			c.spawn(func() { c.send(g.toolCall(ctx, sess, in)) })
		case TypeText:
			sess, err := g.attach(c, "", "")
			if err != nil {
				c.send(Frame{Type: TypeError, ID: in.ID, Error: err.Error()})
				continue
			}
			c.spawn(func() { c.send(g.textTurn(ctx, sess, in)) })
		default:
			c.send(Frame{Type: TypeError, ID: in.ID, Error: "unsupported frame"})
		}
	}
}

// attach returns the connection's session, creating it on first use.
// Later hellos keep the existing session. A hello naming a live session
// joins it; the session is removed when its last connection closes.
func (g *Gateway) attach(c *client, id, deviceID string) (*session.Conn, error) {
	if sess := c.session(); sess != nil {
		return sess, nil
	}
	sess, created, err := g.sessions.Attach(id, deviceID)
	if err != nil {
		g.logger.Warn("ws_session_refused", "session_id", id, "error", err)
		return nil, err
	}
	c.setSession(sess)
	if created {
		g.logger.Info("ws_session_started", "session_id", sess.ID, "device_id", deviceID)
	} else {
		g.logger.Info("ws_session_joined", "session_id", sess.ID, "device_id", deviceID)
	}
	return sess, nil
}

func (g *Gateway) allowed(name string) bool {
	if g.enabled == nil {
		return true
	}
	_, ok := g.enabled[name]
	return ok
}

func (g *Gateway) declarations() []llm.ToolDeclaration {
	if g.tools == nil {
		return []llm.ToolDeclaration{}
	}
	return g.tools.Enabled(g.cfg.Functions)
}

func (g *Gateway) toolCall(ctx context.Context, sess *session.Conn, in Frame) Frame {
	out := Frame{Type: TypeToolResult, ID: in.ID, Name: in.Name}
	var resp plugin.ActionResponse
	if !g.allowed(in.Name) || g.invoker == nil {
		resp = plugin.Fail((&errorsx.UnknownToolError{Name: in.Name}).Error())
	} else {
		resp = g.invoker.Invoke(ctx, in.Name, in.Arguments, sess)
	}
	out.Action = resp.Action.String()
	out.Result = resp.Result
	out.Error = resp.Error
	return out
}

func (g *Gateway) textTurn(ctx context.Context, sess *session.Conn, in Frame) Frame {
	if g.text == nil {
		return Frame{Type: TypeError, ID: in.ID, Error: "text frames are not enabled"}
	}
	reply, err := g.text.HandleText(ctx, sess, in.Text)
	if err != nil {
		g.logger.Warn("ws_text_failed", "session_id", sess.ID, "reason_code", string(errorsx.Reason(err)), "error", err)
		return Frame{Type: TypeError, ID: in.ID, Error: "assistant unavailable"}
	}
	return Frame{Type: TypeReply, ID: in.ID, Text: reply.Text, Outcome: reply.Outcome.String()}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, allowed := range g.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

// client owns one websocket connection. All writes go through sendCh so
// only the loop goroutine writes to the socket.
type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
	done   chan struct{}
	jobs   sync.WaitGroup
	logger *slog.Logger

	mu   sync.Mutex
	sess *session.Conn
}

func newClient(conn *websocket.Conn, buffer int, logger *slog.Logger) *client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{conn: conn, sendCh: make(chan []byte, buffer), done: make(chan struct{}), logger: logger}
}

func (c *client) session() *session.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *client) setSession(s *session.Conn) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

func (c *client) sessionID() string {
	if s := c.session(); s != nil {
		return s.ID
	}
	return ""
}

func (c *client) spawn(fn func()) {
	c.jobs.Add(1)
	go func() {
		defer c.jobs.Done()
		fn()
	}()
}

// wait blocks until in-flight tool calls have finished.
func (c *client) wait() {
	c.jobs.Wait()
}

func (c *client) send(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	select {
	case c.sendCh <- b:
	default:
		sessionID := ""
		if c.sess != nil {
			sessionID = c.sess.ID
		}
		c.logger.Warn("ws_send_dropped", "session_id", sessionID, "type", f.Type, "id", f.ID, "name", f.Name)
	}
}

func (c *client) loop() {
	defer close(c.done)
	for msg := range c.sendCh {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *client) close() error {
	c.mu.Lock()
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	c.mu.Unlock()
	<-c.done
	return c.conn.Close()
}
