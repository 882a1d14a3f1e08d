package cli

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/soyeahso/delegent/internal/agent"
)

// stepPrinter renders agent steps for --verbose. Colour follows
// fatih/color's terminal detection.
type stepPrinter struct {
	w  io.Writer
	mu sync.Mutex

	agentColor  *color.Color
	toolColor   *color.Color
	errColor    *color.Color
	answerColor *color.Color
	dim         *color.Color
}

func newStepPrinter(w io.Writer) *stepPrinter {
	return &stepPrinter{
		w:           w,
		agentColor:  color.New(color.FgCyan, color.Bold),
		toolColor:   color.New(color.FgYellow),
		errColor:    color.New(color.FgRed),
		answerColor: color.New(color.FgGreen),
		dim:         color.New(color.Faint),
	}
}

// Print writes one step. It is safe for concurrent use.
func (p *stepPrinter) Print(s agent.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.agentColor.Fprintf(p.w, "[%s #%d] ", s.Agent, s.Iteration)
	if s.Final() {
		p.answerColor.Fprintln(p.w, "Final answer:")
		p.dim.Fprintln(p.w, indent(s.Answer))
		return
	}

	p.toolColor.Fprintf(p.w, "Action: %s", s.Tool)
	if len(s.Input) > 0 {
		p.dim.Fprintf(p.w, " %s", s.Input)
	}
	io.WriteString(p.w, "\n")
	if s.Err != nil {
		p.errColor.Fprintln(p.w, indent("Observation: "+s.Output))
		return
	}
	p.dim.Fprintln(p.w, indent("Observation: "+s.Output))
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
