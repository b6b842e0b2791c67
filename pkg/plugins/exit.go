package plugins

import (
	"context"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
)

type exitSettings struct {
	Goodbye string `mapstructure:"goodbye"`
}

func exitTool() tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "handle_exit_intent",
			Description: "Call when the user wants to end the conversation.",
			Parameters: llm.Object(map[string]llm.Property{
				"say_goodbye": llm.String("A short goodbye to say to the user."),
			}),
		},
		typ: plugin.SystemCtl,
		handler: func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			cfg := exitSettings{Goodbye: "Goodbye!"}
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			return plugin.Respond(call.Args.StringOr("say_goodbye", cfg.Goodbye)), nil
		},
	}
}
