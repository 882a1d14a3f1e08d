package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// ClockInput is the input of get_current_time.
type ClockInput struct {
	Timezone string `json:"timezone"`
}

func (in ClockInput) location() (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(in.Timezone)) {
	case "", "local":
		return time.Local, nil
	case "utc", "gmt", "z":
		return time.UTC, nil
	}
	return time.LoadLocation(strings.TrimSpace(in.Timezone))
}

func (in ClockInput) Validate() error {
	if _, err := in.location(); err != nil {
		return &ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", in.Timezone)}
	}
	return nil
}

// Clock reports the current date and time.
func Clock(env *Env) Tool {
	return New(Definition{
		Name:        "get_current_time",
		Description: "Get the current date and time. Use for any question about the current time, date or day.",
		Fields: []Field{
			{Name: "timezone", Type: String, Description: "IANA timezone such as 'Europe/Paris', or 'local'", Default: "local"},
		},
	}, func(_ context.Context, in ClockInput) (string, error) {
		loc, err := in.location()
		if err != nil {
			return "", err
		}
		label := in.Timezone
		if label == "" {
			label = "local"
		}
		return fmt.Sprintf("Current %s time: %s", label, env.now().In(loc).Format(time.DateTime)), nil
	})
}
