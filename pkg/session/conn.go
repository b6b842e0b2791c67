package session

import (
	"sync"
	"time"

	"github.com/harunnryd/pluma/pkg/llm"
)

// Conn is the per-conversation state handed to session-bound tools.
// Prompt, values and history are safe for concurrent use; Serialize
// provides the coarser lock for multi-step mutations.
type Conn struct {
	ID        string
	DeviceID  string
	Language  string
	CreatedAt time.Time

	serial sync.Mutex

	mu         sync.RWMutex
	prompt     string
	values     map[string]any
	settings   map[string]map[string]any
	history    []llm.Message
	maxHistory int
}

// Options configures a new Conn.
type Options struct {
	DeviceID   string
	Language   string
	Prompt     string
	MaxHistory int
	// Settings are per-session overrides keyed by tool name.
	Settings map[string]map[string]any
}

func NewConn(id string, opts Options) *Conn {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 12
	}
	settings := make(map[string]map[string]any, len(opts.Settings))
	for k, v := range opts.Settings {
		settings[k] = copyMap(v)
	}
	return &Conn{
		ID:         id,
		DeviceID:   opts.DeviceID,
		Language:   opts.Language,
		CreatedAt:  time.Now(),
		prompt:     opts.Prompt,
		values:     make(map[string]any),
		settings:   settings,
		maxHistory: opts.MaxHistory,
	}
}

// Serialize runs fn while holding the session mutation lock.
func (c *Conn) Serialize(fn func()) {
	c.serial.Lock()
	defer c.serial.Unlock()
	fn()
}

func (c *Conn) Prompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompt
}

func (c *Conn) SetPrompt(prompt string) {
	c.mu.Lock()
	c.prompt = prompt
	c.mu.Unlock()
}

func (c *Conn) Value(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Conn) SetValue(key string, v any) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Settings returns a copy of the session overrides for a tool, or nil.
func (c *Conn) Settings(tool string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.settings[tool]
	if !ok {
		return nil
	}
	return copyMap(s)
}

func (c *Conn) SetSettings(tool string, settings map[string]any) {
	c.mu.Lock()
	c.settings[tool] = copyMap(settings)
	c.mu.Unlock()
}

// Append adds messages to the history, keeping only the newest maxHistory.
// The kept window never starts with tool replies whose assistant tool call
// was trimmed away.
func (c *Conn) Append(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msgs...)
	over := len(c.history) - c.maxHistory
	if over <= 0 {
		return
	}
	for over < len(c.history) && c.history[over].Role == llm.RoleTool {
		over++
	}
	c.history = append([]llm.Message(nil), c.history[over:]...)
}

func (c *Conn) History() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]llm.Message(nil), c.history...)
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
