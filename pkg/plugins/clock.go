package plugins

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
)

type clockSettings struct {
	DefaultTimezone string `mapstructure:"default_timezone"`
}

func clockTool(deps Deps) tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "get_time",
			Description: "Get the current date and time.",
			Parameters: llm.Object(map[string]llm.Property{
				"timezone": llm.String("IANA time zone such as Asia/Jakarta."),
			}),
		},
		typ: plugin.SystemCtl,
		handler: func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			var cfg clockSettings
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			zone := call.Args.StringOr("timezone", cfg.DefaultTimezone)
			now := deps.Now()
			if zone != "" {
				loc, err := time.LoadLocation(zone)
				if err != nil {
					return plugin.Failf("unknown timezone %q", zone), nil
				}
				now = now.In(loc)
			}
			return plugin.ReqLLM(fmt.Sprintf("It is %s (%s).", now.Format("Monday, 2 January 2006 15:04"), now.Location())), nil
		},
	}
}
