// Package export renders a stored session as Markdown or as a standalone
// HTML page.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/atmo-climate/atmo/internal/history"
)

// Formats accepted by Render.
const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

var page = template.Must(template.New("page").Parse(pageTemplate))

// Markdown renders a session transcript as a Markdown document.
func Markdown(sessionID string, msgs []history.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(msgs))
	fmt.Fprintf(&b, "Session `%s`", sessionID)
	if len(msgs) > 0 {
		fmt.Fprintf(&b, ", %d messages, last activity %s", len(msgs), msgs[len(msgs)-1].Timestamp.Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\n\n")

	for _, m := range msgs {
		switch m.Role {
		case history.RoleUser:
			b.WriteString("## You\n\n")
			b.WriteString(m.Content)
		case history.RoleAssistant:
			b.WriteString("## Atmo\n\n")
			b.WriteString(m.Content)
		default:
			b.WriteString("## Error\n\n")
			for _, line := range strings.Split(m.Content, "\n") {
				b.WriteString("> " + line + "\n")
			}
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// HTML renders a session transcript as a standalone HTML page. Raw HTML in
// messages is not passed through.
func HTML(sessionID string, msgs []history.Message) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(sessionID, msgs)), &body); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: title(msgs),
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return out.String(), nil
}

// Render dispatches on format and returns the document with its content
// type.
func Render(format, sessionID string, msgs []history.Message) (content, contentType string, err error) {
	switch format {
	case "", FormatMarkdown:
		return Markdown(sessionID, msgs), "text/markdown; charset=utf-8", nil
	case FormatHTML:
		content, err = HTML(sessionID, msgs)
		return content, "text/html; charset=utf-8", err
	default:
		return "", "", fmt.Errorf("unsupported export format %q", format)
	}
}

func title(msgs []history.Message) string {
	for _, m := range msgs {
		if m.Role == history.RoleUser {
			return history.Title(m.Content)
		}
	}
	return history.Title("")
}
