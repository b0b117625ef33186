package domain

import (
	"fmt"
	"io"
)

// ReportTitle heads every page of the rendered report.
const ReportTitle = "LLM Response Evaluation Report"

// Origin statuses shown in a report section.
const (
	OriginAI      = "ai"
	OriginHuman   = "human"
	OriginUnknown = "unknown"
)

// Report is the preview structure of a run. The downloadable document is
// rendered from the same structure, so both show identical content.
type Report struct {
	Title    string          `json:"title"`
	RunID    string          `json:"run_id"`
	Mode     RunMode         `json:"mode"`
	Entries  int             `json:"entries"`
	Failed   int             `json:"failed"`
	Sections []ReportSection `json:"sections"`
}

// ReportSection renders one record.
type ReportSection struct {
	Number   int         `json:"number"`
	Heading  string      `json:"heading"`
	Prompt   string      `json:"prompt"`
	Response string      `json:"response"`
	Origin   *OriginView `json:"ai_detection,omitempty"`
	Rows     []ReportRow `json:"parameters"`
}

// OriginView is the display form of an AI-origin verdict.
type OriginView struct {
	Status     string `json:"status"`
	Summary    string `json:"summary"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// ReportRow is one parameter judgment.
type ReportRow struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ReportRenderer writes a report as a downloadable document.
type ReportRenderer interface {
	Render(w io.Writer, r Report) error
	ContentType() string
	FileName() string
}

// BuildReport lays out one section per record, numbered from 1 in record
// order, with parameter rows in selection order.
func BuildReport(run Run) Report {
	rep := Report{
		Title:    ReportTitle,
		RunID:    run.ID,
		Mode:     run.Mode,
		Entries:  run.Entries,
		Failed:   run.Failed,
		Sections: make([]ReportSection, 0, len(run.Records)),
	}
	for i, rec := range run.Records {
		sec := ReportSection{
			Number:   i + 1,
			Heading:  fmt.Sprintf("Evaluation #%d", i+1),
			Prompt:   rec.Prompt,
			Response: rec.Response,
		}
		if rec.Origin != nil {
			v := ViewOrigin(*rec.Origin)
			sec.Origin = &v
		}
		for _, j := range rec.Verdict.Judgments {
			sec.Rows = append(sec.Rows, ReportRow{Key: j.Key, Label: j.Label, Value: j.Value, Reason: j.Reason})
		}
		rep.Sections = append(rep.Sections, sec)
	}
	return rep
}

// ViewOrigin formats a verdict for display. Human-written confidence is the
// complement of the AI confidence.
func ViewOrigin(o AIOrigin) OriginView {
	switch {
	case !o.Known():
		return OriginView{Status: OriginUnknown, Summary: "AI detection unavailable", Confidence: 0, Reason: o.Reason}
	case o.Generated():
		return OriginView{
			Status:     OriginAI,
			Summary:    fmt.Sprintf("Likely AI-generated (Confidence: %d%%)", o.Confidence),
			Confidence: o.Confidence,
			Reason:     o.Reason,
		}
	default:
		return OriginView{
			Status:     OriginHuman,
			Summary:    fmt.Sprintf("Likely human-written (Confidence: %d%%)", 100-o.Confidence),
			Confidence: 100 - o.Confidence,
			Reason:     o.Reason,
		}
	}
}
