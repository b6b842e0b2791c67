package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/pluma/pkg/configutil"
	"github.com/harunnryd/pluma/pkg/llm"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/harunnryd/pluma/pkg/resilience"
)

type weatherSettings struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	DefaultLocation string        `mapstructure:"default_location"`
	Retries         int           `mapstructure:"retries"`
	Backoff         time.Duration `mapstructure:"backoff"`
}

var weatherSchema = configutil.Schema{
	Required: []string{"base_url"},
	Optional: []string{"api_key", "default_location", "retries", "backoff"},
}

type weatherReport struct {
	Location string `json:"location"`
	Current  struct {
		TempC     float64 `json:"temp_c"`
		Condition string  `json:"condition"`
	} `json:"current"`
	Forecast []struct {
		Date      string  `json:"date"`
		MinC      float64 `json:"min_c"`
		MaxC      float64 `json:"max_c"`
		Condition string  `json:"condition"`
	} `json:"forecast"`
}

func weatherTool(deps Deps) tool {
	breaker := resilience.NewCircuitBreaker(3, 30*time.Second)
	return tool{
		decl: llm.ToolDeclaration{
			Name:        "get_weather",
			Description: "Get current weather and a short forecast for a location.",
			Parameters: llm.Object(map[string]llm.Property{
				"location": llm.String("City name. Defaults to the user's home city."),
				"days":     llm.Integer("Number of forecast days, 0 to 7."),
			}),
		},
		typ: plugin.Wait,
		handler: func(ctx context.Context, call plugin.Call) (plugin.ActionResponse, error) {
			if err := configutil.ValidateSettings(call.Settings, weatherSchema); err != nil {
				return plugin.ActionResponse{}, err
			}
			cfg := weatherSettings{Retries: 2, Backoff: 200 * time.Millisecond}
			if err := call.Decode(&cfg); err != nil {
				return plugin.ActionResponse{}, err
			}
			location := call.Args.StringOr("location", cfg.DefaultLocation)
			if location == "" {
				return plugin.Fail("location is required"), nil
			}
			days := call.Args.Int("days", 0)
			if days < 0 || days > 7 {
				return plugin.Fail("days must be between 0 and 7"), nil
			}

			var report weatherReport
			policy := resilience.NewRetryPolicy(cfg.Retries, cfg.Backoff)
			err := policy.Do(ctx, func(ctx context.Context) error {
				err := breaker.Call(func() error {
					var err error
					report, err = fetchWeather(ctx, deps.HTTPClient, cfg, location, days)
					return err
				})
				if errors.Is(err, resilience.ErrCircuitOpen) {
					return resilience.Permanent(err)
				}
				return err
			})
			if err != nil {
				return plugin.ActionResponse{}, err
			}
			return plugin.ReqLLM(summarizeWeather(report, location)), nil
		},
	}
}

func fetchWeather(ctx context.Context, client *http.Client, cfg weatherSettings, location string, days int) (weatherReport, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return weatherReport{}, resilience.Permanent(fmt.Errorf("weather base_url: %w", err))
	}
	q := u.Query()
	q.Set("q", location)
	q.Set("days", strconv.Itoa(days))
	if cfg.APIKey != "" {
		q.Set("key", cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return weatherReport{}, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return weatherReport{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return weatherReport{}, resilience.RateLimitError{Provider: "weather"}
	case resp.StatusCode >= 500:
		return weatherReport{}, resilience.UpstreamError{Provider: "weather", Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return weatherReport{}, resilience.Permanent(resilience.UpstreamError{Provider: "weather", Status: resp.StatusCode})
	}
	var report weatherReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&report); err != nil {
		return weatherReport{}, resilience.Permanent(fmt.Errorf("decode weather response: %w", err))
	}
	return report, nil
}

func summarizeWeather(r weatherReport, fallback string) string {
	name := r.Location
	if name == "" {
		name = fallback
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Weather in %s: %.0f°C, %s.", name, r.Current.TempC, r.Current.Condition)
	for _, day := range r.Forecast {
		fmt.Fprintf(&b, " %s: %s, %.0f to %.0f°C.", day.Date, day.Condition, day.MinC, day.MaxC)
	}
	return b.String()
}
