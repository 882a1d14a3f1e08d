package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// WikiInput is the input of wiki_summary.
type WikiInput struct {
	Query     string `json:"query"`
	Sentences int    `json:"sentences"`
}

func (in WikiInput) Validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return &ValidationError{Field: "query", Message: "must not be empty"}
	}
	if in.Sentences < 1 || in.Sentences > 10 {
		return &ValidationError{Field: "sentences", Message: "must be between 1 and 10"}
	}
	return nil
}

// One request: search for the best title and return its intro extract.
type wikiParams struct {
	Action        string `url:"action"`
	Format        string `url:"format"`
	FormatVersion int    `url:"formatversion"`
	Generator     string `url:"generator"`
	GSRSearch     string `url:"gsrsearch"`
	GSRLimit      int    `url:"gsrlimit"`
	Prop          string `url:"prop"`
	ExIntro       bool   `url:"exintro,int"`
	ExPlainText   bool   `url:"explaintext,int"`
	ExSentences   int    `url:"exsentences"`
	Redirects     bool   `url:"redirects,int"`
}

type wikiResponse struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}

// Wikipedia summarises the best-matching English Wikipedia article.
func Wikipedia(env *Env) Tool {
	return New(Definition{
		Name:        "wiki_summary",
		Description: "Get a short summary of a topic from Wikipedia.",
		Fields: []Field{
			{Name: "query", Type: String, Description: "topic to look up", Required: true},
			{Name: "sentences", Type: Number, Description: "number of sentences to return", Default: 3},
		},
	}, func(ctx context.Context, in WikiInput) (string, error) {
		var resp wikiResponse
		err := env.getJSON(ctx, env.WikipediaURL, wikiParams{
			Action:        "query",
			Format:        "json",
			FormatVersion: 2,
			Generator:     "search",
			GSRSearch:     strings.TrimSpace(in.Query),
			GSRLimit:      1,
			Prop:          "extracts",
			ExIntro:       true,
			ExPlainText:   true,
			ExSentences:   in.Sentences,
			Redirects:     true,
		}, &resp)
		if err != nil {
			return "", err
		}
		for _, p := range resp.Query.Pages {
			if p.Missing || strings.TrimSpace(p.Extract) == "" {
				continue
			}
			return fmt.Sprintf("%s: %s", p.Title, firstSentences(p.Extract, in.Sentences)), nil
		}
		return "", fmt.Errorf("no Wikipedia article found for %q", in.Query)
	})
}

// firstSentences keeps the first n sentences of text. A sentence ends at
// '.', '!' or '?' followed by whitespace and an upper-case letter or digit.
func firstSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+2 < len(runes) && runes[i+1] == ' ' && (unicode.IsUpper(runes[i+2]) || unicode.IsDigit(runes[i+2])) {
			count++
			if count == n {
				return string(runes[:i+1])
			}
		}
	}
	return text
}
