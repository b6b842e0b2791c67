package plugin

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/metrics"
)

// Plugin is one entry of the static plugin list. Register is executed once
// by the Loader and declares the plugin's tools on the given Registrar.
type Plugin struct {
	Location string
	Register func(r Registrar) error
}

// LoadPolicy decides what a failing plugin does to startup.
type LoadPolicy int

const (
	// SkipAndWarn logs the failure and keeps loading the other plugins.
	SkipAndWarn LoadPolicy = iota
	// FailFast stops at the first failure and returns it.
	FailFast
)

func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip", "skip_and_warn", "warn":
		return SkipAndWarn, nil
	case "fail", "fail_fast", "abort":
		return FailFast, nil
	}
	return SkipAndWarn, fmt.Errorf("unknown loader policy %q", s)
}

type LoaderOptions struct {
	Policy   LoadPolicy
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Loader populates a Registry from plugins. It is not safe for concurrent
// use; loading is expected to finish before dispatch starts.
type Loader struct {
	registry *Registry
	policy   LoadPolicy
	obs      metrics.Observer
	logger   *slog.Logger
	seen     map[string]bool
	loaded   []string
	failures []error
}

func NewLoader(reg *Registry, opts LoaderOptions) *Loader {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		registry: reg,
		policy:   opts.Policy,
		obs:      metrics.OrNoop(opts.Observer),
		logger:   opts.Logger,
		seen:     make(map[string]bool),
	}
}

// LoadAll runs every plugin not yet seen by this Loader. Calling it again
// with the same plugins is a no-op.
func (l *Loader) LoadAll(plugins ...Plugin) error {
	for _, p := range plugins {
		loc := strings.TrimSpace(p.Location)
		if l.seen[loc] {
			l.logger.Debug("plugin_already_loaded", "location", loc)
			continue
		}
		l.seen[loc] = true
		if err := l.load(loc, p); err != nil {
			l.failures = append(l.failures, err)
			l.record(loc, err)
			if l.policy == FailFast {
				l.logger.Error("plugin_load_failed", "location", loc, "reason_code", string(errorsx.Reason(err)), "error", err)
				return err
			}
			l.logger.Warn("plugin_load_failed", "location", loc, "reason_code", string(errorsx.Reason(err)), "error", err)
			continue
		}
		l.loaded = append(l.loaded, loc)
		l.record(loc, nil)
		l.logger.Info("plugin_loaded", "location", loc)
	}
	return nil
}

func (l *Loader) record(loc string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	l.obs.RecordEvent(metrics.NewEvent(metrics.EventPluginLoad, 1, map[string]string{
		"location": loc,
		"status":   status,
	}))
}

func (l *Loader) load(loc string, p Plugin) (err error) {
	if loc == "" {
		return &errorsx.LoadError{Location: "<unnamed>", Err: fmt.Errorf("plugin location is empty")}
	}
	if p.Register == nil {
		return &errorsx.LoadError{Location: loc, Err: fmt.Errorf("plugin has no register func")}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &errorsx.LoadError{Location: loc, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	st := &stage{names: make(map[string]bool)}
	if err := p.Register(st); err != nil {
		return &errorsx.LoadError{Location: loc, Err: err}
	}
	if st.err != nil {
		return &errorsx.LoadError{Location: loc, Err: st.err}
	}
	if err := l.registry.commit(st.entries); err != nil {
		return &errorsx.LoadError{Location: loc, Err: err}
	}
	return nil
}

// Failures returns the load errors collected so far.
func (l *Loader) Failures() []error {
	return append([]error(nil), l.failures...)
}

// Loaded returns committed plugin locations in load order.
func (l *Loader) Loaded() []string {
	return append([]string(nil), l.loaded...)
}

// stage collects one plugin's registrations so they can be committed together.
type stage struct {
	entries []Entry
	names   map[string]bool
	err     error
}

func (s *stage) Register(name string, decl llm.ToolDeclaration, typ ToolType, h Handler) error {
	entry, err := newEntry(name, decl, typ, h)
	if err == nil && s.names[entry.Declaration.Name] {
		err = &errorsx.DuplicateToolError{Name: entry.Declaration.Name}
	}
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return err
	}
	s.names[entry.Declaration.Name] = true
	s.entries = append(s.entries, entry)
	return nil
}
