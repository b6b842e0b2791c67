package ws

import "github.com/harunnryd/pluma/pkg/llm"

// Frame types.
const (
	TypeHello      = "hello"
	TypeTools      = "tools"
	TypeToolCall   = "tool_call"
	TypeToolResult = "tool_result"
	TypeText       = "text"
	TypeReply      = "reply"
	TypeError      = "error"
)

// Frame is the single JSON envelope used in both directions.
type Frame struct {
	Type      string                `json:"type"`
	ID        string                `json:"id,omitempty"`
	SessionID string                `json:"session_id,omitempty"`
	DeviceID  string                `json:"device_id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Arguments map[string]any        `json:"arguments,omitempty"`
	Action    string                `json:"action,omitempty"`
	Result    string                `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	Text      string                `json:"text,omitempty"`
	Outcome   string                `json:"outcome,omitempty"`
	Tools     []llm.ToolDeclaration `json:"tools,omitempty"`
}
