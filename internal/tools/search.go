package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// SearchInput is the input of duckduckgo_search.
type SearchInput struct {
	Query string `json:"query"`
}

func (in SearchInput) Validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return &ValidationError{Field: "query", Message: "must not be empty"}
	}
	return nil
}

type ddgParams struct {
	Q            string `url:"q"`
	Format       string `url:"format"`
	NoHTML       int    `url:"no_html"`
	SkipDisambig int    `url:"skip_disambig"`
	NoRedirect   int    `url:"no_redirect"`
}

type ddgResponse struct {
	Heading       string          `json:"Heading"`
	AbstractText  string          `json:"AbstractText"`
	AbstractURL   string          `json:"AbstractURL"`
	Answer        json.RawMessage `json:"Answer"`
	Definition    string          `json:"Definition"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search queries the DuckDuckGo instant answer API.
func Search(env *Env) Tool {
	return New(Definition{
		Name:        "duckduckgo_search",
		Description: "Search the web with DuckDuckGo and return a short factual answer about a topic, person, place or thing.",
		Fields: []Field{
			{Name: "query", Type: String, Description: "search terms", Required: true},
		},
	}, func(ctx context.Context, in SearchInput) (string, error) {
		var resp ddgResponse
		err := env.getJSON(ctx, env.SearchURL, ddgParams{
			Q:            strings.TrimSpace(in.Query),
			Format:       "json",
			NoHTML:       1,
			SkipDisambig: 1,
			NoRedirect:   1,
		}, &resp)
		if err != nil {
			return "", err
		}
		return resp.best(), nil
	})
}

func (r ddgResponse) best() string {
	if r.AbstractText != "" {
		if r.AbstractURL != "" {
			return r.AbstractText + "\nSource: " + r.AbstractURL
		}
		return r.AbstractText
	}
	var answer string
	if len(r.Answer) > 0 && json.Unmarshal(r.Answer, &answer) == nil && answer != "" {
		return answer
	}
	if r.Definition != "" {
		return r.Definition
	}
	for _, t := range r.RelatedTopics {
		if t.Text != "" {
			return t.Text
		}
	}
	return "No direct answer found."
}
