package plugins

import (
	"context"
	"fmt"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/transports/twilio"
)

func smsTool(deps Deps) tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "send_sms",
			Description: "Send a text message to a phone number.",
			Parameters: llm.Object(map[string]llm.Property{
				"to":   llm.String("Recipient phone number in E.164 format."),
				"body": llm.String("Message text."),
			}, "to", "body"),
		},
		typ: plugin.Wait,
		handler: func(ctx context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			var cfg twilio.Config
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			if err := cfg.Validate(); err != nil {
				return plugin.Fail(err.Error()), nil
			}
			sid, err := deps.SMS.Send(ctx, cfg, call.Args.String("to"), call.Args.String("body"))
			if err != nil {
				return plugin.ActionResponse{}, err
			}
			deps.Logger.Info("sms_sent", "message_sid", sid)
			return plugin.ReqLLM(fmt.Sprintf("Message sent (id %s).", sid)), nil
		},
	}
}
