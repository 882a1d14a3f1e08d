package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(Backends, cfg.LLM.Backend) {
		add("llm.backend", "must be one of %v, got %q", Backends, cfg.LLM.Backend)
	}
	if cfg.LLM.Retry.MaxAttempts < 1 {
		add("llm.retry.maxAttempts", "must be at least 1, got %d", cfg.LLM.Retry.MaxAttempts)
	}
	if cfg.LLM.Retry.Delay < 0 {
		add("llm.retry.delay", "must not be negative")
	}

	checkURL := func(path, raw string, required bool) {
		if raw == "" {
			if required {
				add(path, "is required")
			}
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add(path, "must be an absolute URL, got %q", raw)
		}
	}
	checkURL("llm.ollamaLocal.endpoint", cfg.LLM.OllamaLocal.Endpoint, true)
	checkURL("llm.ollamaRemote.endpoint", cfg.LLM.OllamaRemote.Endpoint, true)
	checkURL("llm.gemini.endpoint", cfg.LLM.Gemini.Endpoint, false)
	checkURL("tools.searchUrl", cfg.Tools.SearchURL, true)
	checkURL("tools.geocodingUrl", cfg.Tools.GeocodingURL, true)
	checkURL("tools.weatherUrl", cfg.Tools.WeatherURL, true)
	checkURL("tools.wikipediaUrl", cfg.Tools.WikipediaURL, true)

	if cfg.LLM.OllamaLocal.NumCtx < 0 {
		add("llm.ollamaLocal.numCtx", "must not be negative")
	}
	if cfg.LLM.OllamaLocal.Timeout <= 0 {
		add("llm.ollamaLocal.timeout", "must be positive")
	}
	if cfg.LLM.OllamaRemote.Timeout <= 0 {
		add("llm.ollamaRemote.timeout", "must be positive")
	}
	if cfg.LLM.Gemini.Temperature < 0 || cfg.LLM.Gemini.Temperature > 2 {
		add("llm.gemini.temperature", "must be within [0, 2], got %g", cfg.LLM.Gemini.Temperature)
	}

	if cfg.Agent.MaxIterations < 1 {
		add("agent.maxIterations", "must be at least 1, got %d", cfg.Agent.MaxIterations)
	}
	validPolicies := []string{"observe", "abort"}
	if !slices.Contains(validPolicies, cfg.Agent.ToolErrors) {
		add("agent.toolErrors", "must be one of %v, got %q", validPolicies, cfg.Agent.ToolErrors)
	}
	validPlanners := []string{PlannerHosted, PlannerLocal}
	if !slices.Contains(validPlanners, cfg.Agent.Planner) {
		add("agent.planner", "must be one of %v, got %q", validPlanners, cfg.Agent.Planner)
	}
	if cfg.Agent.HistoryTurns < 0 {
		add("agent.historyTurns", "must not be negative")
	}

	if cfg.Tools.Timeout <= 0 {
		add("tools.timeout", "must be positive")
	}
	if cfg.Tools.RatePerSecond < 0 {
		add("tools.ratePerSecond", "must not be negative")
	}

	validStores := []string{MemoryFile, MemorySQLite}
	if !slices.Contains(validStores, cfg.Memory.Backend) {
		add("memory.backend", "must be one of %v, got %q", validStores, cfg.Memory.Backend)
	}

	validLogLevels := []string{"silent", "error", "warn", "info", "debug", "trace"}
	if !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	return issues
}
