// Package dispatch executes registered tools on behalf of the conversation
// loop and turns every outcome, including failures, into an ActionResponse.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/pluma/pkg/configutil"
	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/metrics"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/redact"
	"github.com/harunnryd/pluma/pkg/session"
)

const (
	DefaultTimeout     = 6 * time.Second
	DefaultWaitTimeout = 30 * time.Second
)

var ErrToolTimeout = errorsx.Wrap(errors.New("tool timeout"), errorsx.ReasonToolTimeout)

var errSessionRequired = errorsx.Wrap(errors.New("session required"), errorsx.ReasonSessionRequired)

// Resolver looks up registered tools.
type Resolver interface {
	Resolve(name string) (plugin.Entry, error)
}

// SettingsSource supplies the configured section for a tool.
type SettingsSource interface {
	PluginSettings(tool string) map[string]any
}

// StaticSettings is a SettingsSource backed by a map keyed by tool name.
type StaticSettings map[string]map[string]any

func (s StaticSettings) PluginSettings(tool string) map[string]any {
	section := configutil.Section(s, tool)
	if section == nil {
		return nil
	}
	return configutil.MergeSettings(section, nil)
}

type Options struct {
	// Timeout bounds SYSTEM_CTL, IOT_CTL and CHANGE_SYS_PROMPT handlers.
	Timeout time.Duration
	// WaitTimeout bounds WAIT handlers.
	WaitTimeout time.Duration
	// SerializeBySession runs IOT_CTL and CHANGE_SYS_PROMPT handlers of one
	// session one at a time.
	SerializeBySession bool
	Settings           SettingsSource
	Observer           metrics.Observer
	Logger             *slog.Logger
}

type Dispatcher struct {
	registry Resolver
	opts     Options
	obs      metrics.Observer
	logger   *slog.Logger
}

func New(reg Resolver, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Settings == nil {
		opts.Settings = StaticSettings{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		registry: reg,
		opts:     opts,
		obs:      metrics.OrNoop(opts.Observer),
		logger:   opts.Logger,
	}
}

// InvokeCall invokes a tool call produced by the model.
func (d *Dispatcher) InvokeCall(ctx context.Context, tc llm.ToolCall, conn *session.Conn) plugin.ActionResponse {
	return d.Invoke(ctx, tc.Name, tc.Arguments, conn)
}

// Invoke runs the named tool. It never returns an error and never panics
// on handler failure: every failure becomes an ERROR action.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any, conn *session.Conn) plugin.ActionResponse {
	start := time.Now()
	entry, err := d.registry.Resolve(name)
	if err != nil {
		return d.finish(name, 0, start, plugin.Fail(err.Error()), err)
	}
	clean, err := llm.ValidateArguments(name, entry.Declaration.Parameters, args)
	if err != nil {
		return d.finish(name, entry.Type, start, plugin.Fail(err.Error()), err)
	}
	if len(clean) < len(args) {
		d.logger.Debug("tool_args_dropped", "tool", name, "declared", len(clean), "received", len(args))
	}
	d.logger.Debug("tool_invoke_start", "tool", name, "tool_type", entry.Type.String(), "args", redact.Args(clean))

	call := plugin.Call{Tool: name, Type: entry.Type, Args: plugin.Args(clean)}
	settings := d.opts.Settings.PluginSettings(name)
	switch entry.Type {
	case plugin.SystemCtl, plugin.Wait:
		call.Settings = settings
	case plugin.IoTCtl, plugin.ChangeSysPrompt:
		if conn == nil {
			return d.finish(name, entry.Type, start, plugin.Fail(errSessionRequired.Error()), errSessionRequired)
		}
		call.Session = conn
		call.Settings = configutil.MergeSettings(settings, conn.Settings(name))
	default:
		err := fmt.Errorf("unsupported tool type %s", entry.Type)
		return d.finish(name, entry.Type, start, plugin.Fail(err.Error()), err)
	}

	resp, err := d.run(ctx, entry, call)
	if err != nil {
		return d.finish(name, entry.Type, start, plugin.Fail(err.Error()), err)
	}
	return d.finish(name, entry.Type, start, resp.Normalize(), nil)
}

type outcome struct {
	resp plugin.ActionResponse
	err  error
}

func (d *Dispatcher) run(ctx context.Context, entry plugin.Entry, call plugin.Call) (plugin.ActionResponse, error) {
	timeout := d.opts.Timeout
	if entry.Type == plugin.Wait {
		timeout = d.opts.WaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		exec := func() {
			// The caller has already been answered once ctx is done.
			if err := ctx.Err(); err != nil {
				d.logger.Debug("tool_invoke_skipped", "tool", call.Tool, "error", err)
				ch <- outcome{err: err}
				return
			}
			ch <- d.safeCall(ctx, entry.Handler, call)
		}
		if d.opts.SerializeBySession && call.Session != nil {
			call.Session.Serialize(exec)
			return
		}
		exec()
	}()

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return plugin.ActionResponse{}, ErrToolTimeout
		}
		return plugin.ActionResponse{}, errorsx.Wrap(ctx.Err(), errorsx.ReasonToolTimeout)
	}
}

func (d *Dispatcher) safeCall(ctx context.Context, h plugin.Handler, call plugin.Call) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: &errorsx.HandlerFault{Tool: call.Tool, Fault: r}}
		}
	}()
	resp, err := h(ctx, call)
	if err != nil {
		return outcome{err: &errorsx.HandlerFault{Tool: call.Tool, Fault: err}}
	}
	return outcome{resp: resp}
}

func (d *Dispatcher) finish(name string, typ plugin.ToolType, start time.Time, resp plugin.ActionResponse, err error) plugin.ActionResponse {
	elapsed := time.Since(start)
	typeTag := ""
	if typ.Valid() {
		typeTag = typ.String()
	}
	tags := map[string]string{
		"tool":      name,
		"tool_type": typeTag,
		"action":    resp.Action.String(),
	}
	if err != nil {
		reason := errorsx.Reason(err)
		tags["reason"] = string(reason)
		d.logger.Warn("tool_invoke_failed",
			"tool", name,
			"tool_type", typeTag,
			"reason_code", string(reason),
			"error", redact.Text(err.Error()),
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		d.logger.Debug("tool_invoke_done",
			"tool", name,
			"tool_type", typeTag,
			"action", resp.Action.String(),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	d.obs.RecordEvent(metrics.NewEvent(metrics.EventToolInvoke, float64(elapsed)/float64(time.Millisecond), tags))
	return resp
}
