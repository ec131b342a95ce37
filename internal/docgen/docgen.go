// Package docgen renders the QC document of an item history version to PDF and stores it in the blob store.
package docgen

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"docket/internal/blob"
	"docket/internal/models"
)

// Record is everything printed on a QC document. Sign-off fields are empty until the stage is reached.
type Record struct {
	History        models.ItemHistory
	ProjectTitle   string
	SubmitterName  string
	ReviewerName   string
	SubmissionDate time.Time

	QCNote string
	QCDate *time.Time
	QCUser string
	PMNote string
	PMDate *time.Time
	PMUser string
}

// Generator produces the document for rec and returns its blob key.
type Generator interface {
	Generate(ctx context.Context, rec Record) (string, error)
}

// RenderFunc turns an HTML page into PDF bytes.
type RenderFunc func(ctx context.Context, html string) ([]byte, error)

// PDFGenerator renders Record through an html/template and a RenderFunc (headless Chrome by default).
type PDFGenerator struct {
	store   blob.Store
	render  RenderFunc
	timeout time.Duration
	now     func() time.Time
}

// Option customises a PDFGenerator.
type Option func(*PDFGenerator)

// WithRenderer replaces the Chrome renderer.
func WithRenderer(r RenderFunc) Option {
	return func(g *PDFGenerator) { g.render = r }
}

// WithTimeout bounds a single render.
func WithTimeout(d time.Duration) Option {
	return func(g *PDFGenerator) { g.timeout = d }
}

// NewPDFGenerator returns a generator writing into store.
func NewPDFGenerator(store blob.Store, opts ...Option) *PDFGenerator {
	g := &PDFGenerator{
		store:   store,
		render:  RenderChromePDF,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders rec and stores it under qc-documents/{fullId}/v{version}_{millis}.pdf.
func (g *PDFGenerator) Generate(ctx context.Context, rec Record) (string, error) {
	html, err := RenderHTML(rec)
	if err != nil {
		return "", err
	}

	renderCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	pdf, err := g.render(renderCtx, html)
	if err != nil {
		return "", fmt.Errorf("render qc document %s v%d: %w", rec.History.ItemFullID, rec.History.Version, err)
	}

	key := DocumentKey(rec.History, g.now())
	if _, err := g.store.Put(ctx, key, bytes.NewReader(pdf), blob.PutOptions{
		ContentType: "application/pdf",
		Metadata: map[string]string{
			"item-full-id": rec.History.ItemFullID,
			"version":      fmt.Sprintf("%d", rec.History.Version),
		},
	}); err != nil {
		return "", fmt.Errorf("store qc document: %w", err)
	}
	return key, nil
}

// DocumentKey is the blob key for a rendering of h at t.
func DocumentKey(h models.ItemHistory, t time.Time) string {
	return fmt.Sprintf("qc-documents/%s/v%d_%d.pdf", safeSegment(h.ItemFullID), h.Version, t.UnixMilli())
}

func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "item"
	}
	return b.String()
}

// Nop is a Generator that renders nothing. Used when DOCGEN_ENABLED is false.
type Nop struct{}

func (Nop) Generate(context.Context, Record) (string, error) { return "", nil }

var docTemplate = template.Must(template.New("qc").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"paragraphs": func(s string) []string {
		return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	},
}).Parse(`<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="utf-8">
<title>{{.History.ItemFullID}} {{.History.ItemTitle}}</title>
<style>
body { font-family: "Noto Sans TC", "Microsoft JhengHei", sans-serif; font-size: 11pt; }
h1 { font-size: 16pt; margin-bottom: 4pt; }
table { width: 100%; border-collapse: collapse; margin-top: 12pt; }
th, td { border: 1px solid #444; padding: 4pt 6pt; text-align: left; vertical-align: top; }
th { background: #eee; width: 20%; }
.content p { margin: 0 0 6pt 0; }
</style>
</head>
<body>
<h1>{{.History.ItemFullID}} {{.History.ItemTitle}}</h1>
<table>
<tr><th>專案</th><td>{{.ProjectTitle}}</td></tr>
<tr><th>版本</th><td>v{{.History.Version}} ({{.History.ChangeType}})</td></tr>
<tr><th>提交者</th><td>{{.SubmitterName}}</td></tr>
<tr><th>提交日期</th><td>{{.SubmissionDate.Format "2006-01-02 15:04"}}</td></tr>
<tr><th>審核者</th><td>{{.ReviewerName}}</td></tr>
</table>
<div class="content">
{{range paragraphs .History.ItemContent}}<p>{{.}}</p>
{{end}}</div>
<table>
<tr><th></th><th>簽核人</th><th>日期</th><th>意見</th></tr>
<tr><th>QC</th><td>{{.QCUser}}</td><td>{{date .QCDate}}</td><td>{{.QCNote}}</td></tr>
<tr><th>PM</th><td>{{.PMUser}}</td><td>{{date .PMDate}}</td><td>{{.PMNote}}</td></tr>
</table>
</body>
</html>
`))

// RenderHTML executes the document template for rec.
func RenderHTML(rec Record) (string, error) {
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, rec); err != nil {
		return "", fmt.Errorf("execute qc template: %w", err)
	}
	return buf.String(), nil
}
