package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jwebster45206/quest-engine/internal/archive"
)

// WriteCSV writes the header and rows as CSV.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(r.Rows()); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
th { background: #f4f4f4; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{len .Rows}} entries, generated {{.GeneratedAt}}</p>
<table>
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

// WriteHTML renders the report as a standalone HTML page.
func WriteHTML(w io.Writer, r *Report) error {
	return htmlTemplate.Execute(w, map[string]any{
		"Title":       r.Title(),
		"GeneratedAt": formatTime(&r.GeneratedAt),
		"Header":      r.Header(),
		"Rows":        r.Rows(),
	})
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Table renders the report for a terminal.
func Table(r *Report) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(r.Header()...).
		Rows(r.Rows()...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return titleStyle.Render(fmt.Sprintf("%s (%d)", r.Title(), len(r.Entries))) + "\n" + t.Render()
}

// Key is where Publish stores the report.
func Key(r *Report) string {
	return "reports/" + string(r.Kind) + ".html"
}

// Publish renders the HTML report into the archive, replacing any previous one.
func Publish(ctx context.Context, store archive.Store, r *Report) (string, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	key := Key(r)
	if err := store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to publish report: %w", err)
	}
	return key, nil
}
