// Package report renders run reports as Markdown or standalone HTML.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"eegprep/domain/core"
	"eegprep/domain/rejection"
	"eegprep/domain/run"
)

// MarkdownRenderer writes reports as GitHub-flavoured Markdown.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a renderer.
func NewMarkdownRenderer() *MarkdownRenderer { return &MarkdownRenderer{} }

// Extension is the file suffix for rendered reports.
func (m *MarkdownRenderer) Extension() string { return ".md" }

// Render implements ports.ReportRendererPort.
func (m *MarkdownRenderer) Render(ctx context.Context, r *run.Report) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, core.NewEmptyInputError("nil report")
	}
	var b bytes.Buffer
	title := r.Title
	if title == "" {
		title = "Preprocessing report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	if r.Fingerprint != "" {
		fmt.Fprintf(&b, "- Fingerprint: `%s`\n", r.Fingerprint)
	}
	fmt.Fprintf(&b, "- Recording: `%s`, %d channels at %g Hz, %.1f s\n",
		r.Recording.ID, r.Recording.Channels, r.Recording.SFreq, r.Recording.Duration)
	if len(r.Recording.Bads) > 0 {
		fmt.Fprintf(&b, "- Bad channels: %s\n", strings.Join(r.Recording.Bads, ", "))
	}

	if len(r.Params) > 0 {
		b.WriteString("\n## Parameters\n\n| Parameter | Value |\n|---|---|\n")
		keys := make([]string, 0, len(r.Params))
		for k := range r.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %v |\n", k, r.Params[k])
		}
	}

	b.WriteString("\n## Stages\n\n| Stage | Status | Epochs | Duration |\n|---|---|---|---|\n")
	for _, s := range r.Stages {
		status := "ok"
		if !s.Success {
			status = "failed: " + s.Error
		}
		epochs := "-"
		if s.Metrics.Epochs != nil {
			epochs = humanize.Comma(int64(*s.Metrics.Epochs))
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d ms |\n", s.StageName, status, epochs, s.Duration)
	}

	writeRejection(&b, "Epoch rejection", r.RejectLog)
	if r.Components > 0 {
		b.WriteString("\n## Decomposition\n\n")
		fmt.Fprintf(&b, "%d components fitted.", r.Components)
		if len(r.Explained) > 0 {
			total := 0.0
			for _, v := range r.Explained {
				total += v
			}
			fmt.Fprintf(&b, " Explained variance of the first component: %.1f%%.", 100*r.Explained[0]/total)
		}
		fmt.Fprintf(&b, " Excluded: %s.\n", formatInts(r.Exclude))
		for _, s := range r.Scores {
			fmt.Fprintf(&b, "\n- %s reference `%s`: flagged %s, ranking %s\n",
				strings.ToUpper(string(s.Kind)), s.Channel, formatInts(s.Indices), formatInts(head(s.Ranking(), 5)))
		}
	}
	writeRejection(&b, "Second rejection pass", r.SecondPass)

	if len(r.Provenance) > 0 {
		b.WriteString("\n## Provenance\n\n")
		for i, p := range r.Provenance {
			fmt.Fprintf(&b, "%d. %s\n", i+1, p)
		}
	}
	return b.Bytes(), nil
}

func writeRejection(b *bytes.Buffer, title string, s *rejection.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	fmt.Fprintf(b, "%d of %d epochs rejected (%s). %d cells bad, %d interpolated.\n",
		s.BadEpochs, s.Epochs, percent(s.BadEpochs, s.Epochs), s.BadCells, s.Interpolated)
	if len(s.BadIndices) > 0 {
		fmt.Fprintf(b, "\nRejected epochs: %s\n", formatInts(s.BadIndices))
	}
}

func percent(n, d int) string {
	if d == 0 {
		return "0%"
	}
	return humanize.FormatFloat("#.#", 100*float64(n)/float64(d)) + "%"
}

func formatInts(xs []int) string {
	if len(xs) == 0 {
		return "none"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func head(xs []int, n int) []int {
	if len(xs) < n {
		return xs
	}
	return xs[:n]
}

// HTMLRenderer renders the Markdown report into a complete HTML page.
type HTMLRenderer struct {
	markdown *MarkdownRenderer
}

// NewHTMLRenderer creates a renderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{markdown: NewMarkdownRenderer()}
}

// Extension is the file suffix for rendered reports.
func (h *HTMLRenderer) Extension() string { return ".html" }

// Render implements ports.ReportRendererPort.
func (h *HTMLRenderer) Render(ctx context.Context, r *run.Report) ([]byte, error) {
	md, err := h.markdown.Render(ctx, r)
	if err != nil {
		return nil, err
	}
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
		Title: r.Title,
	})
	return markdown.ToHTML(md, p, renderer), nil
}
