package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Writer writes Markdown blocks, keeping the first write error.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter creates a new Markdown writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered while writing.
func (mw *Writer) Err() error {
	return mw.err
}

// Printf writes formatted text.
func (mw *Writer) Printf(format string, args ...any) {
	if mw.err != nil {
		return
	}
	_, mw.err = fmt.Fprintf(mw.w, format, args...)
}

// Line writes s followed by a newline.
func (mw *Writer) Line(s string) {
	mw.Printf("%s\n", s)
}

// Blank writes an empty line.
func (mw *Writer) Blank() {
	mw.Printf("\n")
}

// Heading writes an ATX heading of the given level followed by a blank line.
// A non-empty anchor is attached as an explicit id.
func (mw *Writer) Heading(level int, text, anchor string) {
	if anchor != "" {
		mw.Printf("%s %s {#%s}\n\n", strings.Repeat("#", level), text, anchor)
		return
	}
	mw.Printf("%s %s\n\n", strings.Repeat("#", level), text)
}

// Field writes a bold label with its value as its own paragraph.
func (mw *Writer) Field(label, value string) {
	mw.Printf("**%s:** %s\n\n", label, value)
}

// Bullets writes a bulleted list followed by a blank line.
func (mw *Writer) Bullets(items []string) {
	if len(items) == 0 {
		return
	}
	for _, it := range items {
		mw.Printf("- %s\n", it)
	}
	mw.Blank()
}

// Fence writes body in a fenced code block.
func (mw *Writer) Fence(lang, body string) {
	mw.Printf("```%s\n%s\n```\n\n", lang, strings.TrimRight(body, "\n"))
}

// Table writes a Markdown table. Cells are formatted with Cell.
func (mw *Writer) Table(headers []string, rows [][]any) {
	t := table.NewWriter()
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = Cell(v)
		}
		t.AppendRow(row)
	}
	mw.Printf("%s\n\n", t.RenderMarkdown())
}

// Create opens the report destination. "" and "-" mean standard output,
// which is never closed.
func Create(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
