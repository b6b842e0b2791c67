package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/harunnryd/pluma/pkg/configutil"
	"github.com/harunnryd/pluma/pkg/session"
)

// Handler executes one tool call.
type Handler func(ctx context.Context, call Call) (ActionResponse, error)

// Call is everything a handler gets for one invocation.
type Call struct {
	Tool string
	Type ToolType
	Args Args
	// Session is set only for IOT_CTL and CHANGE_SYS_PROMPT tools.
	Session *session.Conn
	// Settings is the tool's configuration section.
	Settings map[string]any
}

// Decode decodes the tool's settings into out.
func (c Call) Decode(out any) error {
	if err := configutil.DecodeSettings(c.Settings, out); err != nil {
		return fmt.Errorf("decode %s settings: %w", c.Tool, err)
	}
	return nil
}

// Args are validated tool arguments.
type Args map[string]any

func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the trimmed string value of key. Non-string values are
// rendered as JSON.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// StringOr returns String(key), or fallback when empty.
func (a Args) StringOr(key, fallback string) string {
	if s := a.String(key); s != "" {
		return s
	}
	return fallback
}

func (a Args) Int(key string, fallback int) int {
	switch n := a[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	return fallback
}

func (a Args) Float(key string, fallback float64) float64 {
	switch n := a[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

func (a Args) Bool(key string, fallback bool) bool {
	if b, ok := a[key].(bool); ok {
		return b
	}
	return fallback
}
