package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/session"
)

// DeviceState is what control_device stores on the session.
type DeviceState struct {
	State string
	Level int
}

type deviceSettings struct {
	// Devices, when set, limits which devices can be controlled.
	Devices []string `mapstructure:"devices"`
}

func deviceKey(name string) string {
	return "device." + strings.ToLower(name)
}

// Device returns the stored state of a device on a session.
func Device(conn *session.Conn, name string) (DeviceState, bool) {
	v, ok := conn.Value(deviceKey(name))
	if !ok {
		return DeviceState{}, false
	}
	st, ok := v.(DeviceState)
	return st, ok
}

func deviceTool() tool {
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "control_device",
			Description: "Switch a device in the user's home on or off, optionally setting its level.",
			Parameters: llm.Object(map[string]llm.Property{
				"device": llm.String("Device name, for example lights or fan."),
				"state":  llm.String("Desired power state.", "on", "off"),
				"level":  llm.Integer("Brightness or speed from 0 to 100."),
			}, "device", "state"),
		},
		typ: plugin.IoTCtl,
		handler: func(_ context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			var cfg deviceSettings
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			device := strings.ToLower(call.Args.String("device"))
			if len(cfg.Devices) > 0 && !containsFold(cfg.Devices, device) {
				return plugin.Failf("unknown device %q", device), nil
			}
			prev, known := Device(call.Session, device)
			next := DeviceState{State: call.Args.String("state"), Level: prev.Level}
			withLevel := call.Args.Has("level")
			if withLevel {
				next.Level = call.Args.Int("level", -1)
				if next.Level < 0 || next.Level > 100 {
					return plugin.Fail("level must be between 0 and 100"), nil
				}
			}
			if known && prev == next {
				return plugin.Nothing(), nil
			}
			call.Session.SetValue(deviceKey(device), next)

			if withLevel && next.State == "on" {
				return plugin.Respond(fmt.Sprintf("Set the %s to %d%%.", device, next.Level)), nil
			}
			return plugin.Respond(fmt.Sprintf("Turned the %s %s.", device, next.State)), nil
		},
	}
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
