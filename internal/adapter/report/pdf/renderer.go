// Package pdf renders evaluation reports as downloadable PDF documents.
package pdf

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

const (
	fontFamily = "Helvetica"
	lineHeight = 5.0
	indent     = 10.0
	margin     = 10.0
)

type rgb struct{ r, g, b int }

var (
	green = rgb{46, 204, 113}
	red   = rgb{231, 76, 60}
	grey  = rgb{127, 140, 141}
	black = rgb{0, 0, 0}
)

// Renderer implements domain.ReportRenderer with go-pdf/fpdf core fonts.
type Renderer struct {
	// Compress deflates page streams. Tests disable it to inspect text.
	Compress bool
}

// New returns a renderer with compressed output.
func New() *Renderer { return &Renderer{Compress: true} }

// ContentType implements domain.ReportRenderer.
func (*Renderer) ContentType() string { return "application/pdf" }

// FileName implements domain.ReportRenderer.
func (*Renderer) FileName() string { return "llm_evaluation_report.pdf" }

// Render writes the report. Characters outside Windows-1252 are replaced,
// so no entry content can fail the document.
func (r *Renderer) Render(w io.Writer, rep domain.Report) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(r.Compress)
	doc.SetTitle(encode(rep.Title), false)
	doc.SetMargins(margin, margin, margin)
	doc.SetAutoPageBreak(true, 15)
	doc.SetHeaderFunc(func() {
		doc.SetFont(fontFamily, "B", 12)
		doc.CellFormat(0, 10, encode(domain.ReportTitle), "", 1, "C", false, 0, "")
		doc.Ln(10)
	})
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont(fontFamily, "I", 8)
		doc.CellFormat(0, 10, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "C", false, 0, "")
	})
	doc.AddPage()

	doc.SetFont(fontFamily, "B", 16)
	doc.CellFormat(0, 10, encode(rep.Title), "", 1, "C", false, 0, "")
	doc.Ln(10)
	if len(rep.Sections) == 0 {
		doc.SetFont(fontFamily, "", 11)
		doc.MultiCell(0, lineHeight, "No entries were evaluated in this run.", "", "L", false)
	}
	for _, sec := range rep.Sections {
		writeSection(doc, sec)
	}
	if err := doc.Error(); err != nil {
		return fmt.Errorf("op=pdf.Render: %w", err)
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("op=pdf.Render: %w", err)
	}
	return nil
}

func writeSection(doc *fpdf.Fpdf, sec domain.ReportSection) {
	doc.SetFont(fontFamily, "B", 12)
	doc.CellFormat(0, 10, encode(sec.Heading), "", 1, "L", false, 0, "")

	label(doc, "Prompt:")
	wrapped(doc, sec.Prompt)
	label(doc, "Response:")
	wrapped(doc, sec.Response)
	doc.Ln(5)

	if o := sec.Origin; o != nil {
		label(doc, "AI Detection:")
		switch o.Status {
		case domain.OriginAI:
			textColor(doc, red)
		case domain.OriginHuman:
			textColor(doc, green)
		default:
			textColor(doc, grey)
		}
		wrapped(doc, o.Summary)
		textColor(doc, black)
		reason := o.Reason
		if strings.TrimSpace(reason) == "" {
			reason = "No reason provided"
		}
		wrapped(doc, "Reason: "+reason)
		doc.Ln(5)
	}

	label(doc, "Parameter Evaluations:")
	doc.SetFont(fontFamily, "", 11)
	for _, row := range sec.Rows {
		fill := red
		if row.Value == domain.JudgmentYes {
			fill = green
		}
		doc.SetFillColor(fill.r, fill.g, fill.b)
		doc.CellFormat(50, 8, encode(row.Label), "1", 0, "L", true, 0, "")
		doc.CellFormat(15, 8, encode(row.Value), "1", 0, "C", true, 0, "")
		doc.MultiCell(0, 8, encode(row.Reason), "1", "L", false)
	}
	doc.Ln(10)
}

func label(doc *fpdf.Fpdf, text string) {
	doc.SetFont(fontFamily, "B", 11)
	doc.CellFormat(0, lineHeight, text, "", 1, "L", false, 0, "")
	doc.SetFont(fontFamily, "", 11)
}

// wrapped writes word-wrapped text indented from the left margin.
func wrapped(doc *fpdf.Fpdf, text string) {
	doc.SetLeftMargin(margin + indent)
	doc.SetX(margin + indent)
	doc.MultiCell(0, lineHeight, encode(text), "", "L", false)
	doc.SetLeftMargin(margin)
	doc.SetX(margin)
}

func textColor(doc *fpdf.Fpdf, c rgb) { doc.SetTextColor(c.r, c.g, c.b) }

// encode maps s to Windows-1252 bytes for the core fonts, substituting '?'
// for runes the code page cannot represent.
func encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' {
			b.WriteString("    ")
			continue
		}
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
