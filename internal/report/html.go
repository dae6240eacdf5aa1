package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: "Segoe UI", Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 1200px; margin: 0 auto; padding: 20px; }
h1, h2, h3, h4 { color: #2c3e50; margin-top: 1.5em; }
h1 { border-bottom: 2px solid #3498db; padding-bottom: 10px; }
h2 { border-bottom: 1px solid #bdc3c7; padding-bottom: 5px; }
h3 { color: #16a085; }
table { border-collapse: collapse; width: 100%; margin: 20px 0; }
th, td { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
th { background-color: #f2f2f2; }
tr:nth-child(even) { background-color: #f9f9f9; }
pre { background-color: #f8f8f8; border: 1px solid #ddd; border-radius: 3px; padding: 10px; overflow: auto; }
code { font-family: Consolas, Monaco, "Andale Mono", monospace; }
</style>
</head>
<body>
{{.Body}}
<footer><p>{{.Generated}}</p></footer>
</body>
</html>
`))

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithParserOptions(parser.WithAttribute()),
)

// WriteHTML renders the Markdown report and converts it into a standalone
// HTML page.
func WriteHTML(w io.Writer, r *Report) error {
	var md bytes.Buffer
	if err := WriteMarkdown(&md, r); err != nil {
		return err
	}
	return MarkdownToHTML(w, md.Bytes(), r.Labels.Title, fmt.Sprintf(r.Labels.GeneratedOn, r.Meta.GeneratedAt.Format("2006-01-02 15:04:05")))
}

// MarkdownToHTML converts Markdown into a styled HTML page.
func MarkdownToHTML(w io.Writer, md []byte, title, generated string) error {
	var body bytes.Buffer
	if err := markdown.Convert(md, &body); err != nil {
		return fmt.Errorf("converting markdown: %w", err)
	}
	return pageTemplate.Execute(w, struct {
		Title     string
		Body      template.HTML
		Generated string
	}{
		Title:     title,
		Body:      template.HTML(body.String()),
		Generated: generated,
	})
}

// WriteJSON renders the report model as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
