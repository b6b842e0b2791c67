package plugins

import (
	"context"
	"errors"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/reminder"
)

func reminderPlugin(deps Deps) plugin.Plugin {
	return plugin.Plugin{
		Location: "builtin/reminder",
		Register: func(r plugin.Registrar) error {
			if deps.Reminders == nil {
				return errors.New("reminder scheduler not configured")
			}
			t := reminderTool(deps.Reminders)
			return r.Register(t.decl.Name, t.decl, t.typ, t.handler)
		},
	}
}

func reminderTool(s *reminder.Scheduler) tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "set_reminder",
			Description: "Create a recurring reminder.",
			Parameters: llm.Object(map[string]llm.Property{
				"schedule": llm.String(`Five-field cron expression such as "0 18 * * *", or a descriptor such as "@daily" or "@every 2h".`),
				"text":     llm.String("What to remind the user about."),
			}, "schedule", "text"),
		},
		typ: plugin.SystemCtl,
		handler: func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			r, err := s.Add(call.Args.String("schedule"), call.Args.String("text"))
			if err != nil {
				return plugin.Fail(err.Error()), nil
			}
			return plugin.ReqLLM(reminder.Describe(r)), nil
		},
	}
}
