package tools

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Iframe: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true, atom.Pre: true,
	atom.Blockquote: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// htmlText extracts the visible text of an HTML document, one block
// element per line with runs of whitespace collapsed. The <title> is kept
// as the first line.
func htmlText(r io.Reader) string {
	z := html.NewTokenizer(r)
	var title string
	var sb strings.Builder
	skip := 0
	inTitle := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return joinLines(title, sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Title {
				inTitle = true
			}
			if skippedElements[a] {
				skip++
			}
			if blockElements[a] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Title {
				inTitle = false
			}
			if skippedElements[a] && skip > 0 {
				skip--
			}
			if blockElements[a] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			text := z.Text()
			if inTitle {
				title = strings.TrimSpace(string(text))
				continue
			}
			if skip == 0 {
				sb.Write(bytes.TrimRight(text, "\r"))
				sb.WriteByte(' ')
			}
		}
	}
}

func joinLines(title, body string) string {
	var lines []string
	if title != "" {
		lines = append(lines, title)
	}
	for _, line := range strings.Split(body, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			lines = append(lines, strings.Join(f, " "))
		}
	}
	return strings.Join(lines, "\n")
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
