package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Backend names accepted by llm.backend and --llm.
const (
	BackendOllamaLocal = "ollama_local"
	BackendOllama      = "ollama"
	BackendGemini      = "gemini"
)

// Memory backends accepted by memory.backend.
const (
	MemoryFile   = "file"
	MemorySQLite = "sqlite"
)

// Planner variants accepted by agent.planner.
const (
	PlannerHosted = "hosted"
	PlannerLocal  = "local"
)

// Backends lists the valid backend names in display order.
var Backends = []string{BackendOllamaLocal, BackendOllama, BackendGemini}

// Defaults returns a Config with every default applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = BackendGemini
	}
	if cfg.LLM.Retry.MaxAttempts == 0 {
		cfg.LLM.Retry.MaxAttempts = 3
	}
	if cfg.LLM.Retry.Delay == 0 {
		cfg.LLM.Retry.Delay = 2 * time.Second
	}

	local := &cfg.LLM.OllamaLocal
	if local.Endpoint == "" {
		local.Endpoint = "http://localhost:11434/api/generate"
	}
	if local.Model == "" {
		local.Model = "gemma2:2b"
	}
	if local.NumCtx == 0 {
		local.NumCtx = 2048
	}
	if local.Timeout == 0 {
		local.Timeout = 30 * time.Second
	}

	remote := &cfg.LLM.OllamaRemote
	if remote.Endpoint == "" {
		remote.Endpoint = "http://localhost:8000/generate"
	}
	if remote.Model == "" {
		remote.Model = "gemma2:2b"
	}
	if remote.Timeout == 0 {
		remote.Timeout = 30 * time.Second
	}

	gem := &cfg.LLM.Gemini
	if gem.Model == "" {
		gem.Model = "gemini-2.0-flash-lite"
	}
	if gem.Temperature == 0 {
		gem.Temperature = 0.7
	}
	if gem.Timeout == 0 {
		gem.Timeout = 60 * time.Second
	}

	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 5
	}
	if cfg.Agent.ToolErrors == "" {
		cfg.Agent.ToolErrors = "observe"
	}
	if cfg.Agent.Planner == "" {
		cfg.Agent.Planner = PlannerHosted
	}
	if cfg.Agent.LocalHistoryTurns == 0 {
		cfg.Agent.LocalHistoryTurns = 6
	}

	t := &cfg.Tools
	if t.Timeout == 0 {
		t.Timeout = 10 * time.Second
	}
	if t.RatePerSecond == 0 {
		t.RatePerSecond = 2
	}
	if t.Burst == 0 {
		t.Burst = 4
	}
	if t.SearchURL == "" {
		t.SearchURL = "https://api.duckduckgo.com/"
	}
	if t.GeocodingURL == "" {
		t.GeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if t.WeatherURL == "" {
		t.WeatherURL = "https://api.open-meteo.com/v1/forecast"
	}
	if t.WikipediaURL == "" {
		t.WikipediaURL = "https://en.wikipedia.org/w/api.php"
	}

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = MemoryFile
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8420"
	}
	if cfg.Server.QueryTimeout == 0 {
		cfg.Server.QueryTimeout = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
}

// MemoryPath returns the conversation log location, falling back to a
// backend-specific file under the memory directory.
func (c *Config) MemoryPath(p Paths) string {
	if c.Memory.Path != "" {
		return c.Memory.Path
	}
	if c.Memory.Backend == MemorySQLite {
		return filepath.Join(p.Memory, "session.db")
	}
	return filepath.Join(p.Memory, "session.jsonl")
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	if c.LLM.Gemini.APIKey != "" {
		c.LLM.Gemini.APIKey = mask(c.LLM.Gemini.APIKey)
	}
	return c
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
