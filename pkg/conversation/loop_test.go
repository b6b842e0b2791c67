package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/pluma/pkg/dispatch"
	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/providers/mock"
	"github.com/harunnryd/pluma/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpret(t *testing.T) {
	assert.Equal(t, OutcomeRequery, Interpret(plugin.ReqLLM("x")))
	assert.Equal(t, OutcomeSpeak, Interpret(plugin.Respond("x")))
	assert.Equal(t, OutcomeApologize, Interpret(plugin.Fail("x")))
	assert.Equal(t, OutcomeSilent, Interpret(plugin.Nothing()))
	assert.Equal(t, OutcomeApologize, Interpret(plugin.ActionResponse{}))
}

type fixture struct {
	reg  *plugin.Registry
	conn *session.Conn
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := plugin.NewRegistry(nil)
	handlers := map[string]plugin.ActionResponse{
		"fetch":   plugin.ReqLLM("22 degrees"),
		"lights":  plugin.Respond("Lights are on."),
		"broken":  plugin.Fail("database password rejected"),
		"nothing": plugin.Nothing(),
	}
	for name, resp := range handlers {
		resp := resp
		typ := plugin.SystemCtl
		if name == "lights" {
			typ = plugin.IoTCtl
		}
		require.NoError(t, reg.Register(name, llm.ToolDeclaration{Name: name}, typ, func(context.Context, plugin.Call) (plugin.ActionResponse, error) {
			return resp, nil
		}))
	}
	return fixture{reg: reg, conn: session.NewConn("s1", session.Options{Language: "en-US", Prompt: "You are helpful."})}
}

func (f fixture) loop(adapter llm.Adapter, opts LoopOptions) *Loop {
	return NewLoop(adapter, dispatch.New(f.reg, dispatch.Options{}), f.reg, opts)
}

func callTool(name string) llm.Response {
	return llm.Response{ToolCalls: []llm.ToolCall{{ID: "c-" + name, Name: name, Arguments: map[string]any{}}}}
}

func TestHandleTextPlainReply(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{ResponseText: "Hi there"})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "hello")
	require.NoError(t, err)
	assert.Equal(t, Reply{Text: "Hi there", Outcome: OutcomeSpeak}, reply)

	inputs := adapter.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, llm.RoleSystem, inputs[0].Messages[0].Role)
	assert.Equal(t, "You are helpful.", inputs[0].Messages[0].Content)
	assert.Len(t, inputs[0].Tools, 4)
}

func TestHandleTextRequeriesOnReqLLM(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{
		callTool("fetch"),
		{Text: "It is 22 degrees."},
	}})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "weather?")
	require.NoError(t, err)
	assert.Equal(t, "It is 22 degrees.", reply.Text)
	assert.Equal(t, OutcomeSpeak, reply.Outcome)
	assert.Equal(t, []string{"fetch"}, reply.Tools)

	inputs := adapter.Inputs()
	require.Len(t, inputs, 2)
	last := inputs[1].Messages[len(inputs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c-fetch", last.ToolCallID)
	assert.Equal(t, "22 degrees", last.Content)
}

func TestHandleTextSpeaksResponseWithoutModel(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{callTool("lights")}})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "lights on")
	require.NoError(t, err)
	assert.Equal(t, "Lights are on.", reply.Text)
	assert.Equal(t, OutcomeSpeak, reply.Outcome)
	assert.Len(t, adapter.Inputs(), 1)
}

func TestHandleTextApologizesWithoutFaultText(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{callTool("broken")}})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "do it")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApologize, reply.Outcome)
	assert.Equal(t, "Sorry, I couldn't do that right now.", reply.Text)
	assert.NotContains(t, reply.Text, "password")
}

func TestHandleTextApologyPerLanguage(t *testing.T) {
	f := newFixture(t)
	f.conn = session.NewConn("s2", session.Options{Language: "id-ID"})
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{callTool("not_registered")}})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "lakukan")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApologize, reply.Outcome)
	assert.Equal(t, "Maaf, saya belum bisa melakukannya sekarang.", reply.Text)
}

func TestHandleTextSilentOnNone(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{callTool("nothing")}})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "shh")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSilent, reply.Outcome)
	assert.Empty(t, reply.Text)
}

func TestHandleTextBoundsToolRounds(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{
		callTool("fetch"), callTool("fetch"), callTool("fetch"),
	}})
	reply, err := f.loop(adapter, LoopOptions{MaxToolRounds: 2}).HandleText(context.Background(), f.conn, "loop")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApologize, reply.Outcome)
	assert.Len(t, adapter.Inputs(), 3)
}

func TestHandleTextOffersEnabledToolsOnly(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{})
	_, err := f.loop(adapter, LoopOptions{Functions: []string{"fetch"}}).HandleText(context.Background(), f.conn, "hi")
	require.NoError(t, err)
	tools := adapter.Inputs()[0].Tools
	require.Len(t, tools, 1)
	assert.Equal(t, "fetch", tools[0].Name)
}

type recordingInvoker struct {
	inner Invoker
	names []string
}

func (r *recordingInvoker) InvokeCall(ctx context.Context, tc llm.ToolCall, conn *session.Conn) plugin.ActionResponse {
	r.names = append(r.names, tc.Name)
	return r.inner.InvokeCall(ctx, tc, conn)
}

func TestHandleTextRefusesDisabledTool(t *testing.T) {
	f := newFixture(t)
	inv := &recordingInvoker{inner: dispatch.New(f.reg, dispatch.Options{})}
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Script: []llm.Response{callTool("lights")}})
	loop := NewLoop(adapter, inv, f.reg, LoopOptions{Functions: []string{"fetch"}})

	reply, err := loop.HandleText(context.Background(), f.conn, "lights on")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApologize, reply.Outcome)
	assert.NotEqual(t, "Lights are on.", reply.Text)
	assert.Empty(t, inv.names)

	history := f.conn.History()
	last := history[len(history)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "unknown tool")
}

func TestHandleTextModelError(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Err: errors.New("upstream 500")})
	_, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "hi")
	require.Error(t, err)
	assert.Equal(t, errorsx.ReasonLLMGenerate, errorsx.Reason(err))
}

func TestHandleTextEmptyIsSilent(t *testing.T) {
	f := newFixture(t)
	adapter := mock.NewLLMAdapter(mock.LLMConfig{})
	reply, err := f.loop(adapter, LoopOptions{}).HandleText(context.Background(), f.conn, "   ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSilent, reply.Outcome)
	assert.Empty(t, adapter.Inputs())
}

func TestApologyOverride(t *testing.T) {
	l := NewLoop(mock.NewLLMAdapter(mock.LLMConfig{}), nil, plugin.NewRegistry(nil), LoopOptions{
		Apologies: map[string]string{"EN": "Oops."},
	})
	assert.Equal(t, "Oops.", l.Apology("en-GB"))
	assert.Equal(t, "Oops.", l.Apology("fr"))
}
