package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/jonreiter/govader"
)

// SentimentInput is the input of sentiment_analysis.
type SentimentInput struct {
	Text string `json:"text"`
}

func (in SentimentInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return &ValidationError{Field: "text", Message: "must not be empty"}
	}
	return nil
}

// Sentiment scores the polarity of English text.
func Sentiment() Tool {
	return New(Definition{
		Name:        "sentiment_analysis",
		Description: "Classify the sentiment of a piece of English text as positive, negative or neutral.",
		Fields: []Field{
			{Name: "text", Type: String, Description: "text to analyse", Required: true},
		},
	}, func(_ context.Context, in SentimentInput) (string, error) {
		p := Polarity(in.Text)
		label := "neutral"
		switch {
		case p >= sentimentThreshold:
			label = "positive"
		case p <= -sentimentThreshold:
			label = "negative"
		}
		return fmt.Sprintf("Sentiment: %s (polarity=%s)", label,
			strconv.FormatFloat(math.Round(p*1000)/1000, 'f', -1, 64)), nil
	})
}

// Neutral band of the VADER compound score.
const sentimentThreshold = 0.05

var analyzer = sync.OnceValue(govader.NewSentimentIntensityAnalyzer)

// Polarity is the VADER compound score of text, in [-1, 1].
func Polarity(text string) float64 {
	return analyzer().PolarityScores(text).Compound
}
