// Package openai is an llm.Adapter for OpenAI-compatible chat completion
// endpoints with function calling.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/pluma/pkg/configutil"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/resilience"
)

const DefaultBaseURL = "https://api.openai.com/v1"

var settingsSchema = configutil.Schema{
	Required: []string{"api_key", "model"},
	Optional: []string{"base_url", "timeout", "temperature"},
}

type Settings struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature *float64      `mapstructure:"temperature"`
}

type Adapter struct {
	settings Settings
	client   *http.Client
}

// NewAdapter builds an adapter from an llm.settings section.
func NewAdapter(raw map[string]any) (*Adapter, error) {
	if err := configutil.ValidateSettings(raw, settingsSchema); err != nil {
		return nil, fmt.Errorf("openai settings: %w", err)
	}
	var s Settings
	if err := configutil.DecodeSettings(raw, &s); err != nil {
		return nil, fmt.Errorf("openai settings: %w", err)
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return &Adapter{settings: s, client: &http.Client{Timeout: s.Timeout}}, nil
}

func (a *Adapter) Name() string { return "openai" }

type wireFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Arguments   string `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	body, err := a.buildRequest(input)
	if err != nil {
		return llm.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.settings.BaseURL+"/chat/completions", body)
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.settings.APIKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return llm.Response{}, resilience.RateLimitError{Provider: "openai", Message: string(msg)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Response{}, resilience.UpstreamError{Provider: "openai", Status: resp.StatusCode}
	}
	var payload wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, fmt.Errorf("decode openai response: %w", err)
	}
	return fromWire(payload)
}

func (a *Adapter) buildRequest(input llm.Context) (*bytes.Buffer, error) {
	req := wireRequest{
		Model:       a.settings.Model,
		Messages:    make([]wireMessage, 0, len(input.Messages)),
		Temperature: a.settings.Temperature,
	}
	for _, m := range input.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", tc.Name, err)
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		req.Messages = append(req.Messages, wm)
	}
	for _, t := range input.Tools {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func fromWire(payload wireResponse) (llm.Response, error) {
	if len(payload.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai returned no choices")
	}
	first := payload.Choices[0]
	resp := llm.Response{
		Text:         first.Message.Content,
		FinishReason: first.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}
	for _, call := range first.Message.ToolCalls {
		args := map[string]any{}
		if s := strings.TrimSpace(call.Function.Arguments); s != "" {
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			if err := dec.Decode(&args); err != nil {
				// The dispatcher reports the missing arguments back to the model.
				args = map[string]any{}
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return resp, nil
}
