package tools

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"unicode/utf8"
)

const fetchLimit = 1000

// FetchInput is the input of fetch_url_content.
type FetchInput struct {
	URL string `json:"url"`
}

func (in FetchInput) Validate() error {
	u, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "only http and https URLs are supported"}
	}
	return nil
}

// FetchURL downloads a page and returns the start of its text.
func FetchURL(env *Env) Tool {
	return New(Definition{
		Name:        "fetch_url_content",
		Description: "Download a web page and return the first 1000 characters of its text.",
		Fields: []Field{
			{Name: "url", Type: String, Description: "http or https URL", Required: true},
		},
	}, func(ctx context.Context, in FetchInput) (string, error) {
		body, ctype, err := env.get(ctx, env.FetchHTTP, strings.TrimSpace(in.URL), "text/html,text/plain;q=0.9,*/*;q=0.5")
		if err != nil {
			return "", err
		}
		text := string(body)
		if looksLikeHTML(ctype, body) {
			text = htmlText(bytes.NewReader(body))
		}
		return truncateRunes(strings.TrimSpace(text), fetchLimit), nil
	})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
