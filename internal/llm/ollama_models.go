package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// LocalModel is a model pulled onto an Ollama daemon.
type LocalModel struct {
	Name          string
	Size          int64
	ModifiedAt    time.Time
	Family        string
	ParameterSize string
}

// ListOllamaModels asks the daemon behind endpoint (any URL on the daemon,
// e.g. its /api/generate endpoint) which models it has.
func ListOllamaModels(ctx context.Context, endpoint string, hc *http.Client) ([]LocalModel, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama endpoint %q", endpoint)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	client := api.NewClient(&url.URL{Scheme: u.Scheme, Host: u.Host}, hc)
	resp, err := client.List(ctx)
	if err != nil {
		return nil, &TransportError{Backend: "ollama_local", Attempts: 1, Err: err}
	}

	models := make([]LocalModel, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, LocalModel{
			Name:          m.Name,
			Size:          m.Size,
			ModifiedAt:    m.ModifiedAt,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
		})
	}
	return models, nil
}

// HasModel reports whether name is among models. A name without a tag
// matches its ":latest" variant.
func HasModel(models []LocalModel, name string) bool {
	want := name
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range models {
		if m.Name == name || m.Name == want {
			return true
		}
	}
	return false
}
