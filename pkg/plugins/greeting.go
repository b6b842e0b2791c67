package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
)

type greetingSettings struct {
	DefaultName string `mapstructure:"default_name"`
	Timezone    string `mapstructure:"timezone"`
}

func greetingTool(deps Deps) tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "get_greeting",
			Description: "Greet the user according to the time of day.",
			Parameters: llm.Object(map[string]llm.Property{
				"name": llm.String("The user's name, if known."),
			}),
		},
		typ: plugin.SystemCtl,
		handler: func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			var cfg greetingSettings
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			now := deps.Now()
			if cfg.Timezone != "" {
				loc, err := time.LoadLocation(cfg.Timezone)
				if err != nil {
					return plugin.Failf("unknown timezone %q", cfg.Timezone), nil
				}
				now = now.In(loc)
			}
			greeting := partOfDay(now)
			if name := call.Args.StringOr("name", cfg.DefaultName); name != "" {
				greeting = fmt.Sprintf("%s, %s", greeting, name)
			}
			return plugin.ReqLLM(greeting), nil
		},
	}
}

func partOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
