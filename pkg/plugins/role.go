package plugins

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
)

type roleSettings struct {
	// Roles maps a role name to the system prompt it installs.
	Roles map[string]string `mapstructure:"roles"`
}

func roleTool() tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "change_role",
			Description: "Switch the assistant to a different persona when the user asks for one.",
			Parameters: llm.Object(map[string]llm.Property{
				"role": llm.String("Name of the persona to switch to."),
			}, "role"),
		},
		typ: plugin.ChangeSysPrompt,
		handler: func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			var cfg roleSettings
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			role := strings.ToLower(call.Args.String("role"))
			prompt, ok := lookupRole(cfg.Roles, role)
			if !ok {
				if len(cfg.Roles) == 0 {
					return plugin.Fail("no roles configured"), nil
				}
				return plugin.Failf("unknown role %q; available: %s", role, strings.Join(roleNames(cfg.Roles), ", ")), nil
			}
			call.Session.SetPrompt(prompt)
			return plugin.Respond(fmt.Sprintf("Okay, I'm your %s now.", role)), nil
		},
	}
}

func lookupRole(roles map[string]string, role string) (string, bool) {
	for name, prompt := range roles {
		if strings.EqualFold(name, role) && strings.TrimSpace(prompt) != "" {
			return prompt, true
		}
	}
	return "", false
}

func roleNames(roles map[string]string) []string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
