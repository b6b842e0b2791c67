package pluma

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/session"
)

type invokeRequest struct {
	SessionID string         `json:"session_id"`
	Arguments map[string]any `json:"arguments"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	SessionID string   `json:"session_id"`
	Text      string   `json:"text"`
	Outcome   string   `json:"outcome"`
	Tools     []string `json:"tools,omitempty"`
}

// Handler returns the HTTP surface: health, tool listing and invocation,
// text turns, metrics and the websocket gateway.
func (c *Container) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", c.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", c.listTools)
		r.Post("/tools/{name}/invoke", c.invokeTool)
		r.Post("/sessions/{id}/messages", c.postMessage)
		r.Delete("/sessions/{id}", c.deleteSession)
	})
	if c.prom != nil {
		r.Method(http.MethodGet, c.cfg.Metrics.Path, c.prom.Handler())
	}
	r.Method(http.MethodGet, c.cfg.Server.WSPath, c.gateway)
	return r
}

// Enabled reports whether name is offered on the outer surfaces.
func (c *Container) Enabled(name string) bool {
	if !c.registry.Has(name) {
		return false
	}
	if len(c.cfg.Functions) == 0 {
		return true
	}
	for _, fn := range c.cfg.Functions {
		if strings.TrimSpace(fn) == name {
			return true
		}
	}
	return false
}

func (c *Container) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if c.sessions.Draining() {
		status = http.StatusServiceUnavailable
		state = "draining"
	}
	writeJSON(w, status, map[string]any{
		"status":   state,
		"tools":    c.registry.Len(),
		"sessions": c.sessions.Count(),
	})
}

func (c *Container) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.registry.Enabled(c.cfg.Functions))
}

func (c *Container) invokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body invokeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			c.logger.Warn("http_invoke_bad_body", "tool", name, "error", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if !c.Enabled(name) {
		writeJSON(w, http.StatusOK, plugin.Fail((&errorsx.UnknownToolError{Name: name}).Error()))
		return
	}
	var conn *session.Conn
	if id := strings.TrimSpace(body.SessionID); id != "" {
		var err error
		if conn, _, err = c.sessions.Open(id, "http"); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	resp := c.dispatcher.Invoke(r.Context(), name, body.Arguments, conn)
	writeJSON(w, http.StatusOK, resp)
}

func (c *Container) postMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	conn, _, err := c.sessions.Open(id, "http")
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	reply, err := c.loop.HandleText(r.Context(), conn, body.Text)
	if err != nil {
		c.logger.Warn("http_text_failed", "session_id", id, "reason_code", string(errorsx.Reason(err)), "error", err)
		http.Error(w, "assistant unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		SessionID: id,
		Text:      reply.Text,
		Outcome:   reply.Outcome.String(),
		Tools:     reply.Tools,
	})
}

func (c *Container) deleteSession(w http.ResponseWriter, r *http.Request) {
	c.sessions.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
