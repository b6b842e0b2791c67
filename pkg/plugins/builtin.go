// Package plugins holds the tools shipped with pluma. Each tool is a
// plugin.Plugin returned by Builtin; nothing registers itself on import.
package plugins

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/reminder"
	"github.com/harunnryd/pluma/pkg/transports/twilio"
)

// SMSSender sends a text message and returns the provider's message id.
type SMSSender interface {
	Send(ctx context.Context, cfg twilio.Config, to, body string) (string, error)
}

// Deps are the collaborators the builtin tools need.
type Deps struct {
	Now        func() time.Time
	HTTPClient *http.Client
	SMS        SMSSender
	// Reminders backs set_reminder; the tool fails to load without it.
	Reminders *reminder.Scheduler
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if d.SMS == nil {
		d.SMS = twilio.NewMessenger()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Builtin returns the static plugin list in registration order.
func Builtin(deps Deps) []plugin.Plugin {
	deps = deps.withDefaults()
	return []plugin.Plugin{
		single("builtin/greeting", greetingTool(deps)),
		single("builtin/clock", clockTool(deps)),
		single("builtin/exit", exitTool()),
		single("builtin/device", deviceTool()),
		single("builtin/role", roleTool()),
		single("builtin/weather", weatherTool(deps)),
		single("builtin/sms", smsTool(deps)),
		reminderPlugin(deps),
	}
}

// tool is one registration.
type tool struct {
	decl    llm.ToolDeclaration
	typ     plugin.ToolType
	handler plugin.Handler
}

func single(location string, t tool) plugin.Plugin {
	return plugin.Plugin{
		Location: location,
		Register: func(r plugin.Registrar) error {
			return r.Register(t.decl.Name, t.decl, t.typ, t.handler)
		},
	}
}
