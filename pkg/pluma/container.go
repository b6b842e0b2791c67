package pluma

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.uber.org/dig"

	"github.com/harunnryd/pluma/pkg/conversation"
	"github.com/harunnryd/pluma/pkg/dispatch"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/metrics"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/plugins"
	"github.com/harunnryd/pluma/pkg/providers/mock"
	"github.com/harunnryd/pluma/pkg/providers/openai"
	"github.com/harunnryd/pluma/pkg/redact"
	"github.com/harunnryd/pluma/pkg/reminder"
	"github.com/harunnryd/pluma/pkg/session"
	"github.com/harunnryd/pluma/pkg/transports/ws"
)

// Options carries collaborators that do not come from configuration.
type Options struct {
	// Plugins are loaded after the builtin ones.
	Plugins []plugin.Plugin
	// LLM drives the conversation loop. Defaults to the rule-based mock.
	LLM        llm.Adapter
	SMS        plugins.SMSSender
	HTTPClient *http.Client
	// OnReminder is called when a reminder fires.
	OnReminder func(reminder.Reminder)
	Now        func() time.Time
	Logger     *slog.Logger
}

// Container holds the wired services. Loading has finished by the time New
// returns, so the registry is ready for dispatch.
type Container struct {
	cfg        Config
	logger     *slog.Logger
	registry   *plugin.Registry
	loader     *plugin.Loader
	dispatcher *dispatch.Dispatcher
	sessions   *session.Registry
	reminders  *reminder.Scheduler
	loop       *conversation.Loop
	gateway    *ws.Gateway
	prom       *metrics.PrometheusObserver
	async      *metrics.AsyncObserver
}

func (c *Container) Config() Config                         { return c.cfg }
func (c *Container) Logger() *slog.Logger                   { return c.logger }
func (c *Container) Registry() *plugin.Registry             { return c.registry }
func (c *Container) Loader() *plugin.Loader                 { return c.loader }
func (c *Container) Dispatcher() *dispatch.Dispatcher       { return c.dispatcher }
func (c *Container) Sessions() *session.Registry            { return c.sessions }
func (c *Container) Reminders() *reminder.Scheduler         { return c.reminders }
func (c *Container) Loop() *conversation.Loop               { return c.loop }
func (c *Container) Gateway() *ws.Gateway                   { return c.gateway }
func (c *Container) Prometheus() *metrics.PrometheusObserver { return c.prom }

// Functions returns the configured enablement list.
func (c *Container) Functions() []string {
	return append([]string(nil), c.cfg.Functions...)
}

// New builds and wires all services from cfg.
func New(cfg Config, opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	d := dig.New()
	providers := []any{
		func() Config { return cfg },
		func() Options { return opts },
		func() *slog.Logger { return opts.Logger },
		newPrometheus,
		newObserver,
		func(a *metrics.AsyncObserver) metrics.Observer { return a },
		newSessions,
		newScheduler,
		newPlugins,
		newDispatcher,
		newAdapter,
		newLoop,
		newGateway,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		logger *slog.Logger,
		prom *metrics.PrometheusObserver,
		async *metrics.AsyncObserver,
		reg *plugin.Registry,
		loader *plugin.Loader,
		disp *dispatch.Dispatcher,
		sessions *session.Registry,
		reminders *reminder.Scheduler,
		loop *conversation.Loop,
		gateway *ws.Gateway,
	) {
		result = &Container{
			cfg:        cfg,
			logger:     logger,
			registry:   reg,
			loader:     loader,
			dispatcher: disp,
			sessions:   sessions,
			reminders:  reminders,
			loop:       loop,
			gateway:    gateway,
			prom:       prom,
			async:      async,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("wire container: %w", dig.RootCause(err))
	}
	result.logger.Info("pluma_init",
		"environment", cfg.Environment,
		"tools", result.registry.Len(),
		"plugins_loaded", len(result.loader.Loaded()),
		"plugin_failures", len(result.loader.Failures()),
		"llm_provider", result.loop.AdapterName(),
	)
	return result, nil
}

// Drain refuses new sessions and waits for open websocket connections to
// close, then removes every session, including connectionless ones.
func (c *Container) Drain(ctx context.Context) error {
	c.gateway.SetDraining(true)
	c.sessions.SetDraining(true)
	c.logger.Info("pluma_draining", "sessions", c.sessions.Count(), "connected", c.sessions.Attached())
	if !c.sessions.WaitForDetached(ctx, 100*time.Millisecond) {
		c.logger.Warn("pluma_drain_timeout", "connected", c.sessions.Attached())
	}
	c.sessions.CloseAll()
	return nil
}

// Close flushes pending metric events.
func (c *Container) Close() {
	c.async.Close()
}

func newPrometheus(cfg Config) *metrics.PrometheusObserver {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewPrometheusObserver()
}

func newObserver(cfg Config, prom *metrics.PrometheusObserver, logger *slog.Logger) *metrics.AsyncObserver {
	list := []metrics.Observer{
		metrics.NewSamplingObserver(metrics.NewLoggerObserver(logger, slog.LevelDebug), cfg.Metrics.LogSampleRate),
	}
	if prom != nil {
		list = append(list, prom)
	}
	return metrics.NewAsyncObserver(metrics.NewMultiObserver(list...), 2048)
}

func newSessions(cfg Config) *session.Registry {
	return session.NewRegistry(func(id, deviceID string) *session.Conn {
		return session.NewConn(id, session.Options{
			DeviceID:   deviceID,
			Language:   cfg.Language,
			Prompt:     cfg.Prompt,
			MaxHistory: cfg.Context.MaxHistory,
		})
	})
}

func newScheduler(cfg Config, opts Options, obs metrics.Observer, logger *slog.Logger) *reminder.Scheduler {
	return reminder.New(reminder.Options{
		Location: cfg.location(),
		Notify:   opts.OnReminder,
		Observer: obs,
		Logger:   component(logger, "reminder"),
		Now:      opts.Now,
	})
}

func newPlugins(cfg Config, opts Options, sched *reminder.Scheduler, obs metrics.Observer, logger *slog.Logger) (*plugin.Registry, *plugin.Loader, error) {
	reg := plugin.NewRegistry(component(logger, "registry"))
	loader := plugin.NewLoader(reg, plugin.LoaderOptions{
		Policy:   cfg.LoadPolicy(),
		Observer: obs,
		Logger:   component(logger, "loader"),
	})
	list := plugins.Builtin(plugins.Deps{
		Now:        opts.Now,
		HTTPClient: opts.HTTPClient,
		SMS:        opts.SMS,
		Reminders:  sched,
		Logger:     component(logger, "plugins"),
	})
	list = append(list, opts.Plugins...)
	if err := loader.LoadAll(list...); err != nil {
		return nil, nil, err
	}
	return reg, loader, nil
}

func newDispatcher(cfg Config, reg *plugin.Registry, obs metrics.Observer, logger *slog.Logger) *dispatch.Dispatcher {
	opts := cfg.DispatchOptions()
	opts.Observer = obs
	opts.Logger = component(logger, "dispatch")
	return dispatch.New(reg, opts)
}

func newAdapter(cfg Config, opts Options) (llm.Adapter, error) {
	if opts.LLM != nil {
		return opts.LLM, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "openai":
		return openai.NewAdapter(cfg.LLM.Settings)
	case "", "mock":
		return mock.NewLLMAdapter(mock.LLMConfig{
			ResponseText: "I can greet you, tell the time, control your devices and check the weather.",
			Rules:        mock.DemoRules(),
		}), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func newLoop(cfg Config, adapter llm.Adapter, disp *dispatch.Dispatcher, reg *plugin.Registry, obs metrics.Observer, logger *slog.Logger) *conversation.Loop {
	return conversation.NewLoop(adapter, disp, reg, conversation.LoopOptions{
		Functions:     cfg.Functions,
		MaxToolRounds: cfg.Context.MaxToolRounds,
		Apologies:     cfg.Apology,
		Observer:      obs,
		Logger:        component(logger, "conversation"),
	})
}

func newGateway(cfg Config, sessions *session.Registry, disp *dispatch.Dispatcher, reg *plugin.Registry, loop *conversation.Loop, logger *slog.Logger) *ws.Gateway {
	return ws.New(ws.Options{
		Config: ws.Config{
			AllowAnyOrigin: cfg.Server.AllowAnyOrigin,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Functions:      cfg.Functions,
		},
		Sessions: sessions,
		Invoker:  disp,
		Tools:    reg,
		Text:     loop,
		Logger:   component(logger, "ws"),
	})
}

func component(base *slog.Logger, name string) *slog.Logger {
	return base.With(slog.String("component", name))
}
