package config

import "time"

// Config is the root configuration for Delegent.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Tools   ToolsConfig   `yaml:"tools"`
	Memory  MemoryConfig  `yaml:"memory"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig selects and parameterises the chat-model backend.
type LLMConfig struct {
	Backend      string             `yaml:"backend"` // "ollama_local" | "ollama" | "gemini"
	Retry        RetryConfig        `yaml:"retry"`
	OllamaLocal  OllamaLocalConfig  `yaml:"ollamaLocal"`
	OllamaRemote OllamaRemoteConfig `yaml:"ollamaRemote"`
	Gemini       GeminiConfig       `yaml:"gemini"`
}

// RetryConfig governs the HTTP adapters. Gemini relies on its SDK transport.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Delay       time.Duration `yaml:"delay"`
}

// OllamaLocalConfig targets the Ollama /api/generate endpoint.
type OllamaLocalConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	NumCtx   int           `yaml:"numCtx"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OllamaRemoteConfig targets an Ollama-style {prompt, model} -> generated_text service.
type OllamaRemoteConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GeminiConfig configures the hosted Gemini backend. An empty APIKey falls
// back to application default credentials.
type GeminiConfig struct {
	APIKey      string        `yaml:"apiKey,omitempty"`
	Model       string        `yaml:"model"`
	Endpoint    string        `yaml:"endpoint,omitempty"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AgentConfig bounds the reasoning loops.
type AgentConfig struct {
	MaxIterations int    `yaml:"maxIterations"`
	ToolErrors    string `yaml:"toolErrors"` // "observe" | "abort"
	// Planner picks the prompt variant: "hosted" (full prompt and history)
	// or "local" (compact prompt for small-context models). It is chosen
	// independently of llm.backend.
	Planner string `yaml:"planner"`
	// HistoryTurns caps how many past turns the hosted planner sees; 0 means all.
	HistoryTurns int `yaml:"historyTurns"`
	// LocalHistoryTurns is the message window of the local planner.
	LocalHistoryTurns int `yaml:"localHistoryTurns"`
}

// ToolsConfig configures the HTTP-backed utility tools.
type ToolsConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	AllowPrivateURLs bool          `yaml:"allowPrivateURLs,omitempty"`
	RatePerSecond    float64       `yaml:"ratePerSecond"`
	Burst            int           `yaml:"burst"`
	SearchURL        string        `yaml:"searchUrl"`
	GeocodingURL     string        `yaml:"geocodingUrl"`
	WeatherURL       string        `yaml:"weatherUrl"`
	WikipediaURL     string        `yaml:"wikipediaUrl"`
}

// MemoryConfig picks the conversation log backend.
type MemoryConfig struct {
	Backend string `yaml:"backend"` // "file" | "sqlite"
	Path    string `yaml:"path,omitempty"`
}

// ServerConfig controls `delegent serve`.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"` // "silent" | "error" | "warn" | "info" | "debug" | "trace"
}
