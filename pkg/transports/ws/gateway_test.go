package ws

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/pluma/pkg/conversation"
	"github.com/harunnryd/pluma/pkg/dispatch"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/providers/mock"
	"github.com/harunnryd/pluma/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	server   *httptest.Server
	sessions *session.Registry
}

func newEnv(t *testing.T, cfg Config) env {
	t.Helper()
	reg := plugin.NewRegistry(nil)
	require.NoError(t, reg.Register("echo", llm.ToolDeclaration{
		Name:       "echo",
		Parameters: llm.Object(map[string]llm.Property{"text": llm.String("text")}, "text"),
	}, plugin.SystemCtl, func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
		return plugin.ReqLLM(call.Args.String("text")), nil
	}))
	require.NoError(t, reg.Register("lamp", llm.ToolDeclaration{Name: "lamp"}, plugin.IoTCtl, func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
		call.Session.SetValue("lamp", "on")
		return plugin.Respond("Lamp on."), nil
	}))
	sessions := session.NewRegistry(nil)
	d := dispatch.New(reg, dispatch.Options{})
	loop := conversation.NewLoop(mock.NewLLMAdapter(mock.LLMConfig{Rules: []mock.Rule{{Contains: "lamp", Tool: "lamp"}}}), d, reg, conversation.LoopOptions{})
	g := New(Options{Config: cfg, Sessions: sessions, Invoker: d, Tools: reg, Text: loop})
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return env{server: srv, sessions: sessions}
}

func (e env) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, in Frame) Frame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out Frame
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestGatewayHelloAndToolCall(t *testing.T) {
	e := newEnv(t, Config{})
	conn := e.dial(t)

	hello := roundTrip(t, conn, Frame{Type: TypeHello, DeviceID: "kitchen-speaker"})
	assert.Equal(t, TypeHello, hello.Type)
	assert.NotEmpty(t, hello.SessionID)
	sess, ok := e.sessions.Get(hello.SessionID)
	require.True(t, ok)
	assert.Equal(t, "kitchen-speaker", sess.DeviceID)

	res := roundTrip(t, conn, Frame{Type: TypeToolCall, ID: "1", Name: "echo", Arguments: map[string]any{"text": "hi"}})
	assert.Equal(t, Frame{Type: TypeToolResult, ID: "1", Name: "echo", Action: "REQLLM", Result: "hi"}, res)

	res = roundTrip(t, conn, Frame{Type: TypeToolCall, ID: "2", Name: "lamp"})
	assert.Equal(t, "RESPONSE", res.Action)
	v, _ := sess.Value("lamp")
	assert.Equal(t, "on", v)
}

func TestGatewayErrors(t *testing.T) {
	e := newEnv(t, Config{})
	conn := e.dial(t)

	res := roundTrip(t, conn, Frame{Type: TypeToolCall, ID: "1", Name: "nope"})
	assert.Equal(t, "ERROR", res.Action)
	assert.Contains(t, res.Error, "unknown tool")

	res = roundTrip(t, conn, Frame{Type: TypeToolCall, ID: "2", Name: "echo"})
	assert.Equal(t, "ERROR", res.Action)

	res = roundTrip(t, conn, Frame{Type: "dance"})
	assert.Equal(t, Frame{Type: TypeError, Error: "unsupported frame"}, res)
}

func TestGatewayFunctionsFilter(t *testing.T) {
	e := newEnv(t, Config{Functions: []string{"echo"}})
	conn := e.dial(t)

	tools := roundTrip(t, conn, Frame{Type: TypeTools})
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "echo", tools.Tools[0].Name)

	res := roundTrip(t, conn, Frame{Type: TypeToolCall, ID: "1", Name: "lamp"})
	assert.Equal(t, "ERROR", res.Action)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestGatewayTextTurn(t *testing.T) {
	e := newEnv(t, Config{})
	conn := e.dial(t)
	reply := roundTrip(t, conn, Frame{Type: TypeText, ID: "t1", Text: "turn the lamp on"})
	assert.Equal(t, Frame{Type: TypeReply, ID: "t1", Text: "Lamp on.", Outcome: "speak"}, reply)
}

func TestGatewayRemovesSessionOnClose(t *testing.T) {
	e := newEnv(t, Config{})
	conn := e.dial(t)
	hello := roundTrip(t, conn, Frame{Type: TypeHello})
	require.Equal(t, int64(1), e.sessions.Count())

	require.NoError(t, conn.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.True(t, e.sessions.WaitForEmpty(ctx, 10*time.Millisecond))
	_, ok := e.sessions.Get(hello.SessionID)
	assert.False(t, ok)
}

func TestGatewaySharedSessionOutlivesOneConnection(t *testing.T) {
	e := newEnv(t, Config{})
	first := e.dial(t)
	hello := roundTrip(t, first, Frame{Type: TypeHello, DeviceID: "kitchen"})

	second := e.dial(t)
	joined := roundTrip(t, second, Frame{Type: TypeHello, SessionID: hello.SessionID})
	require.Equal(t, hello.SessionID, joined.SessionID)
	require.Equal(t, int64(1), e.sessions.Count())

	require.NoError(t, first.Close())
	time.Sleep(50 * time.Millisecond)
	_, ok := e.sessions.Get(hello.SessionID)
	assert.True(t, ok, "session must stay while another connection holds it")

	res := roundTrip(t, second, Frame{Type: TypeToolCall, ID: "1", Name: "lamp"})
	assert.Equal(t, "RESPONSE", res.Action)

	require.NoError(t, second.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.True(t, e.sessions.WaitForEmpty(ctx, 10*time.Millisecond))
}

func TestClientSendLogsDroppedFrame(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := newClient(nil, 1, logger)

	c.send(Frame{Type: TypeToolResult, ID: "1", Name: "echo"})
	assert.Empty(t, buf.String())
	c.send(Frame{Type: TypeToolResult, ID: "2", Name: "echo"})
	assert.Contains(t, buf.String(), "ws_send_dropped")
	assert.Contains(t, buf.String(), "id=2")
	assert.Len(t, c.sendCh, 1)
}

func TestGatewayOriginCheck(t *testing.T) {
	e := newEnv(t, Config{AllowedOrigins: []string{"https://app.example.com"}})
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
