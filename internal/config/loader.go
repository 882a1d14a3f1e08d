package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

func expandFields(cfg *Config) {
	cfg.LLM.Gemini.APIKey = expandEnvVars(cfg.LLM.Gemini.APIKey)
	cfg.LLM.Gemini.Endpoint = expandEnvVars(cfg.LLM.Gemini.Endpoint)
	cfg.LLM.OllamaLocal.Endpoint = expandEnvVars(cfg.LLM.OllamaLocal.Endpoint)
	cfg.LLM.OllamaRemote.Endpoint = expandEnvVars(cfg.LLM.OllamaRemote.Endpoint)
	cfg.Memory.Path = expandEnvVars(cfg.Memory.Path)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return &ConfigError{Message: "failed to load " + f + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads the config file, applies defaults and environment overrides,
// and returns the merged Config. A missing file yields defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Defaults(), err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	expandFields(&cfg)
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// applyEnvOverrides maps the backend variables and DELEGENT_* settings
// onto the config.
func applyEnvOverrides(cfg *Config) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&cfg.LLM.OllamaLocal.Endpoint, "LOCAL_OLLAMA_API_ENDPOINT")
	set(&cfg.LLM.OllamaLocal.Model, "LOCAL_OLLAMA_MODEL_NAME")
	set(&cfg.LLM.OllamaRemote.Endpoint, "OLLAMA_API_ENDPOINT")
	set(&cfg.LLM.OllamaRemote.Model, "OLLAMA_MODEL_NAME")
	set(&cfg.LLM.Gemini.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	set(&cfg.LLM.Gemini.Model, "GEMINI_MODEL_NAME")
	set(&cfg.LLM.Gemini.Endpoint, "GEMINI_API_ENDPOINT")
	set(&cfg.LLM.Backend, "DELEGENT_LLM")
	set(&cfg.Memory.Path, "DELEGENT_MEMORY")
	set(&cfg.Agent.Planner, "DELEGENT_PLANNER")

	if v := os.Getenv("DELEGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
