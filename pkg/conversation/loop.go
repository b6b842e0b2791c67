package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/metrics"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/redact"
	"github.com/harunnryd/pluma/pkg/resilience"
	"github.com/harunnryd/pluma/pkg/session"
)

// Invoker executes a model tool call.
type Invoker interface {
	InvokeCall(ctx context.Context, tc llm.ToolCall, conn *session.Conn) plugin.ActionResponse
}

// ToolLister returns the declarations offered to the model.
type ToolLister interface {
	Enabled(names []string) []llm.ToolDeclaration
}

type LoopOptions struct {
	// Functions limits the tools offered to the model. Empty offers all.
	Functions []string
	// MaxToolRounds bounds how many times tool results are fed back to the
	// model within one turn.
	MaxToolRounds int
	// Apologies maps a language prefix ("en", "id") to the apology text.
	Apologies map[string]string
	Observer  metrics.Observer
	Logger    *slog.Logger
}

// Reply is the result of one user turn.
type Reply struct {
	Text    string
	Outcome Outcome
	// Tools lists the tools invoked during the turn, in order.
	Tools []string
}

var defaultApologies = map[string]string{
	"en": "Sorry, I couldn't do that right now.",
	"id": "Maaf, saya belum bisa melakukannya sekarang.",
}

type Loop struct {
	adapter llm.Adapter
	invoker Invoker
	tools   ToolLister
	opts    LoopOptions
	allowed map[string]bool
	obs     metrics.Observer
	logger  *slog.Logger
}

func NewLoop(adapter llm.Adapter, d Invoker, tools ToolLister, opts LoopOptions) *Loop {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 3
	}
	apologies := make(map[string]string, len(defaultApologies)+len(opts.Apologies))
	for k, v := range defaultApologies {
		apologies[k] = v
	}
	for k, v := range opts.Apologies {
		if strings.TrimSpace(v) != "" {
			apologies[strings.ToLower(k)] = v
		}
	}
	opts.Apologies = apologies
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var allowed map[string]bool
	for _, fn := range opts.Functions {
		if fn = strings.TrimSpace(fn); fn != "" {
			if allowed == nil {
				allowed = make(map[string]bool, len(opts.Functions))
			}
			allowed[fn] = true
		}
	}
	return &Loop{
		adapter: adapter,
		invoker: d,
		tools:   tools,
		opts:    opts,
		allowed: allowed,
		obs:     metrics.OrNoop(opts.Observer),
		logger:  opts.Logger,
	}
}

func (l *Loop) AdapterName() string {
	return l.adapter.Name()
}

// Apology returns the apology for a language, falling back to English.
func (l *Loop) Apology(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if s, ok := l.opts.Apologies[lang]; ok {
		return s
	}
	return l.opts.Apologies["en"]
}

// HandleText runs one user turn. Tool failures never produce an error here;
// they become an apology. Only model failures are returned as errors.
func (l *Loop) HandleText(ctx context.Context, conn *session.Conn, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Outcome: OutcomeSilent}, nil
	}
	conn.Append(llm.Message{Role: llm.RoleUser, Content: text})

	var reply Reply
	for round := 0; ; round++ {
		resp, err := l.generate(ctx, conn)
		if err != nil {
			return reply, err
		}
		if len(resp.ToolCalls) == 0 {
			conn.Append(llm.Message{Role: llm.RoleAssistant, Content: resp.Text})
			reply.Text = resp.Text
			reply.Outcome = OutcomeSpeak
			return reply, nil
		}
		if round >= l.opts.MaxToolRounds {
			l.logger.Warn("tool_rounds_exhausted", "session_id", conn.ID, "rounds", round)
			reply.Text = l.Apology(conn.Language)
			reply.Outcome = OutcomeApologize
			return reply, nil
		}

		conn.Append(llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		done, final := l.runTools(ctx, conn, resp.ToolCalls, &reply)
		if done {
			return final, nil
		}
	}
}

// runTools invokes calls in order. The first outcome other than a requery
// ends the turn; later calls in the batch are answered as skipped.
func (l *Loop) runTools(ctx context.Context, conn *session.Conn, calls []llm.ToolCall, reply *Reply) (bool, Reply) {
	for i, call := range calls {
		reply.Tools = append(reply.Tools, call.Name)
		ar := l.invoke(ctx, call, conn)
		outcome := Interpret(ar)
		switch outcome {
		case OutcomeRequery:
			conn.Append(toolMessage(call, ar.Result))
			continue
		case OutcomeSpeak:
			conn.Append(toolMessage(call, ar.Result), llm.Message{Role: llm.RoleAssistant, Content: ar.Result})
			reply.Text = ar.Result
		case OutcomeApologize:
			l.logger.Warn("tool_failed_apology",
				"session_id", conn.ID,
				"tool", call.Name,
				"error", redact.Text(ar.Error),
			)
			conn.Append(toolMessage(call, "error: "+ar.Error))
			reply.Text = l.Apology(conn.Language)
		case OutcomeSilent:
			conn.Append(toolMessage(call, ""))
		}
		for _, rest := range calls[i+1:] {
			conn.Append(toolMessage(rest, "skipped"))
		}
		reply.Outcome = outcome
		return true, *reply
	}
	return false, Reply{}
}

// invoke refuses tools left out of Functions, even when they are registered.
func (l *Loop) invoke(ctx context.Context, call llm.ToolCall, conn *session.Conn) plugin.ActionResponse {
	if l.allowed != nil && !l.allowed[call.Name] {
		err := &errorsx.UnknownToolError{Name: call.Name}
		l.logger.Warn("tool_not_enabled", "session_id", conn.ID, "tool", call.Name)
		return plugin.Fail(err.Error())
	}
	return l.invoker.InvokeCall(ctx, call, conn)
}

func (l *Loop) generate(ctx context.Context, conn *session.Conn) (llm.Response, error) {
	input := llm.Context{Tools: l.tools.Enabled(l.opts.Functions)}
	if prompt := strings.TrimSpace(conn.Prompt()); prompt != "" {
		input.Messages = append(input.Messages, llm.Message{Role: llm.RoleSystem, Content: prompt})
	}
	input.Messages = append(input.Messages, conn.History()...)

	start := time.Now()
	resp, err := l.adapter.Generate(ctx, input)
	elapsed := time.Since(start)
	tags := map[string]string{"adapter": l.adapter.Name(), "status": "ok"}
	if err != nil {
		reason := errorsx.ReasonLLMGenerate
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonLLMRateLimit
		}
		err = errorsx.Wrap(err, reason)
		tags["status"] = "error"
		l.obs.RecordEvent(metrics.NewEvent(metrics.EventLLMGenerate, float64(elapsed.Milliseconds()), tags))
		l.logger.Error("llm_generate_failed", "session_id", conn.ID, "adapter", l.adapter.Name(), "reason_code", string(errorsx.Reason(err)), "error", err)
		return llm.Response{}, err
	}
	l.obs.RecordEvent(metrics.NewEvent(metrics.EventLLMGenerate, float64(elapsed.Milliseconds()), tags))
	return resp, nil
}

func toolMessage(call llm.ToolCall, content string) llm.Message {
	return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: content}
}
