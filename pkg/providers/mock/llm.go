// Package mock provides an offline language-model adapter for tests and the
// local demo server.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harunnryd/pluma/pkg/llm"
)

// Rule turns a user utterance containing Contains into a call to Tool.
type Rule struct {
	Contains  string
	Tool      string
	Arguments map[string]any
}

type LLMConfig struct {
	// ResponseText is returned when nothing else applies.
	ResponseText string
	// Script is replayed in order before Rules are consulted.
	Script []llm.Response
	Rules  []Rule
	// Err, when set, is returned from every Generate call.
	Err error
}

type LLMAdapter struct {
	cfg LLMConfig

	mu     sync.Mutex
	step   int
	calls  int
	inputs []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, input)
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	if a.step < len(a.cfg.Script) {
		resp := a.cfg.Script[a.step]
		a.step++
		return resp, nil
	}
	if n := len(input.Messages); n > 0 {
		last := input.Messages[n-1]
		switch last.Role {
		case llm.RoleTool:
			return llm.Response{Text: last.Content, FinishReason: "stop"}, nil
		case llm.RoleUser:
			if call, ok := a.match(last.Content, input.Tools); ok {
				return llm.Response{ToolCalls: []llm.ToolCall{call}, FinishReason: "tool_calls"}, nil
			}
		}
	}
	return llm.Response{Text: a.cfg.ResponseText, FinishReason: "stop"}, nil
}

func (a *LLMAdapter) match(text string, tools []llm.ToolDeclaration) (llm.ToolCall, bool) {
	text = strings.ToLower(text)
	for _, r := range a.cfg.Rules {
		if !strings.Contains(text, strings.ToLower(r.Contains)) || !offered(tools, r.Tool) {
			continue
		}
		a.calls++
		args := make(map[string]any, len(r.Arguments))
		for k, v := range r.Arguments {
			args[k] = v
		}
		return llm.ToolCall{ID: fmt.Sprintf("call_%d", a.calls), Name: r.Tool, Arguments: args}, true
	}
	return llm.ToolCall{}, false
}

func offered(tools []llm.ToolDeclaration, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Inputs returns every context passed to Generate.
func (a *LLMAdapter) Inputs() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Context(nil), a.inputs...)
}

// DemoRules maps a few plain-English phrases onto the builtin tools.
func DemoRules() []Rule {
	return []Rule{
		{Contains: "hello", Tool: "get_greeting"},
		{Contains: "time", Tool: "get_time"},
		{Contains: "goodbye", Tool: "handle_exit_intent"},
		{Contains: "lights on", Tool: "control_device", Arguments: map[string]any{"device": "lights", "state": "on"}},
		{Contains: "lights off", Tool: "control_device", Arguments: map[string]any{"device": "lights", "state": "off"}},
		{Contains: "weather", Tool: "get_weather"},
	}
}
