package plugin

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolType governs the calling convention and execution semantics of a handler.
type ToolType int

const (
	SystemCtl ToolType = iota + 1
	IoTCtl
	Wait
	ChangeSysPrompt
)

func (t ToolType) String() string {
	switch t {
	case SystemCtl:
		return "SYSTEM_CTL"
	case IoTCtl:
		return "IOT_CTL"
	case Wait:
		return "WAIT"
	case ChangeSysPrompt:
		return "CHANGE_SYS_PROMPT"
	}
	return fmt.Sprintf("ToolType(%d)", int(t))
}

func (t ToolType) Valid() bool {
	return t >= SystemCtl && t <= ChangeSysPrompt
}

// NeedsSession reports whether handlers of this type receive the session.
func (t ToolType) NeedsSession() bool {
	return t == IoTCtl || t == ChangeSysPrompt
}

func ParseToolType(s string) (ToolType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SYSTEM_CTL":
		return SystemCtl, nil
	case "IOT_CTL":
		return IoTCtl, nil
	case "WAIT":
		return Wait, nil
	case "CHANGE_SYS_PROMPT":
		return ChangeSysPrompt, nil
	}
	return 0, fmt.Errorf("unknown tool type %q", s)
}

func (t ToolType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tool type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ToolType) UnmarshalText(b []byte) error {
	v, err := ParseToolType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Action tells the conversation loop what to do after a tool call.
type Action int

const (
	// ActionReqLLM feeds Result back to the model for the final reply.
	ActionReqLLM Action = iota + 1
	// ActionRespond delivers Result to the user directly.
	ActionRespond
	// ActionError surfaces Error to the user as a short apology.
	ActionError
	// ActionNone ends the turn with no observable effect.
	ActionNone
)

func (a Action) String() string {
	switch a {
	case ActionReqLLM:
		return "REQLLM"
	case ActionRespond:
		return "RESPONSE"
	case ActionError:
		return "ERROR"
	case ActionNone:
		return "NONE"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) Valid() bool {
	return a >= ActionReqLLM && a <= ActionNone
}

func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "REQLLM":
		return ActionReqLLM, nil
	case "RESPONSE":
		return ActionRespond, nil
	case "ERROR":
		return ActionError, nil
	case "NONE":
		return ActionNone, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ActionResponse is what a handler returns.
type ActionResponse struct {
	Action Action `json:"action"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

const genericFailure = "tool failed"

func ReqLLM(result string) ActionResponse {
	return ActionResponse{Action: ActionReqLLM, Result: result}
}

func Respond(text string) ActionResponse {
	return ActionResponse{Action: ActionRespond, Result: text}
}

func Fail(msg string) ActionResponse {
	return ActionResponse{Action: ActionError, Error: msg}
}

func Failf(format string, args ...any) ActionResponse {
	return Fail(fmt.Sprintf(format, args...))
}

func Nothing() ActionResponse {
	return ActionResponse{Action: ActionNone}
}

// Normalize keeps exactly one meaningful payload per action kind.
func (r ActionResponse) Normalize() ActionResponse {
	switch r.Action {
	case ActionReqLLM, ActionRespond:
		return ActionResponse{Action: r.Action, Result: r.Result}
	case ActionError:
		msg := strings.TrimSpace(r.Error)
		if msg == "" {
			msg = genericFailure
		}
		return ActionResponse{Action: ActionError, Error: msg}
	case ActionNone:
		return Nothing()
	}
	return Failf("invalid action %d", int(r.Action))
}

func (r ActionResponse) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}
