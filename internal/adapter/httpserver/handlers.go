package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

// NDJSONContentType selects progress streaming on the upload route.
const NDJSONContentType = "application/x-ndjson"

// ReadinessProbe is one named dependency check for /readyz.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg      config.Config
	Uploads  usecase.UploadService
	Evaluate usecase.EvaluateService
	Results  usecase.ResultService
	Accounts usecase.AccountService
	Probes   []ReadinessProbe
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, uploads usecase.UploadService, eval usecase.EvaluateService, results usecase.ResultService, accounts usecase.AccountService, probes ...ReadinessProbe) *Server {
	return &Server{Cfg: cfg, Uploads: uploads, Evaluate: eval, Results: results, Accounts: accounts, Probes: probes}
}

type summaryView struct {
	ID         string         `json:"id"`
	Mode       domain.RunMode `json:"mode"`
	Source     string         `json:"source,omitempty"`
	Parameters []string       `json:"parameters"`
	DetectAI   bool           `json:"detect_ai"`
	Entries    int            `json:"entries"`
	Evaluated  int            `json:"evaluated"`
	Failed     int            `json:"failed"`
	CreatedAt  time.Time      `json:"created_at"`
}

func viewSummary(s domain.RunSummary) summaryView {
	params := s.Parameters
	if params == nil {
		params = []string{}
	}
	return summaryView{
		ID:         s.ID,
		Mode:       s.Mode,
		Source:     s.Source,
		Parameters: params,
		DetectAI:   s.DetectAI,
		Entries:    s.Entries,
		Evaluated:  s.Records,
		Failed:     s.Failed,
		CreatedAt:  s.CreatedAt,
	}
}

type runResponse struct {
	Run    summaryView   `json:"run"`
	Report domain.Report `json:"report"`
}

func newRunResponse(run domain.Run) runResponse {
	return runResponse{Run: viewSummary(run.Summary()), Report: domain.BuildReport(run)}
}

// session builds the per-request pipeline session.
func session(r *http.Request, req selectionRequest) (domain.Session, error) {
	id, ok := usecase.CurrentIdentity(r.Context())
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: sign in required", domain.ErrUnauthenticated)
	}
	sel, err := buildSelection(req)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{Identity: id, Selection: sel, DetectAI: req.DetectAI}, nil
}

type catalogView struct {
	Key            domain.Category    `json:"key"`
	Label          string             `json:"label"`
	DefaultEnabled bool               `json:"default_enabled"`
	Parameters     []domain.Parameter `json:"parameters"`
}

// ParametersHandler lists both parameter catalogs.
func (s *Server) ParametersHandler() http.HandlerFunc {
	defaults := domain.DefaultSelectionSpec()
	cats := make([]catalogView, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		cats = append(cats, catalogView{Key: c, Label: domain.CategoryLabel(c), DefaultEnabled: defaults.Enabled[c], Parameters: domain.Catalog(c)})
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
	}
}

type manualRequest struct {
	Prompt   string `json:"prompt" validate:"required,max=50000"`
	Response string `json:"response" validate:"required,max=50000"`
	selectionRequest
}

// ManualHandler evaluates one prompt/response pair.
func (s *Server) ManualHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req manualRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		req.Prompt = strings.TrimSpace(req.Prompt)
		req.Response = strings.TrimSpace(req.Response)
		req.normalize()
		if details := validate(req); details != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), details)
			return
		}
		sess, err := session(r, req.selectionRequest)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		run, err := s.Evaluate.EvaluateSingle(r.Context(), sess, req.Prompt, req.Response)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, newRunResponse(run))
	}
}

func allowedMIMEFor(m string, filename string) bool {
	m = strings.ToLower(m)
	switch usecase.MIMEFromName(filename) {
	case "text/plain":
		// Detectors sometimes classify rich text as text/html or text/xml.
		return strings.HasPrefix(m, "text/")
	case "application/pdf":
		return m == "application/pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		// Minimal DOCX files may only be recognized as zip archives.
		return m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || m == "application/zip"
	}
	return false
}

type progressLine struct {
	Type     string  `json:"type"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

type resultLine struct {
	Type string `json:"type"`
	runResponse
}

type errorLine struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

// UploadHandler evaluates every entry of an uploaded document. Clients
// sending Accept: application/x-ndjson receive one progress line per entry
// followed by a result line.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB}}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if int64(len(data)) > maxBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB}}})
			return
		}

		// Extension allowlist first, then content sniffing.
		if !usecase.IsSupportedFile(header.Filename) {
			writeError(w, r, fmt.Errorf("%w: upload a PDF, DOCX or TXT file", domain.ErrUnsupportedFormat), map[string]string{"filename": header.Filename})
			return
		}
		if mt := mimetype.Detect(data); len(data) > 0 && !allowedMIMEFor(mt.String(), header.Filename) {
			writeError(w, r, fmt.Errorf("%w: content does not match extension", domain.ErrUnsupportedFormat), map[string]string{"mime": mt.String(), "filename": header.Filename})
			return
		}

		sel := selectionRequest{
			Categories: splitList(r.MultipartForm.Value["categories"]),
			Parameters: splitList(r.MultipartForm.Value["parameters"]),
			DetectAI:   parseBool(r.FormValue("detect_ai")),
		}
		sel.normalize()
		if details := validate(sel); details != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), details)
			return
		}
		sess, err := session(r, sel)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		entries, err := s.Uploads.Ingest(r.Context(), header.Filename, data)
		if err != nil {
			writeError(w, r, err, map[string]string{"filename": header.Filename})
			return
		}
		LoggerFrom(r).Info("document ingested",
			slog.String("filename", header.Filename),
			slog.Int("entries", len(entries)),
			slog.Int("parameters", len(sess.Selection)),
			slog.Bool("detect_ai", sess.DetectAI))

		if !strings.Contains(r.Header.Get("Accept"), NDJSONContentType) {
			run, err := s.Evaluate.EvaluateBatch(r.Context(), sess, header.Filename, entries, nil)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			writeJSON(w, http.StatusOK, newRunResponse(run))
			return
		}
		s.streamBatch(w, r, sess, header.Filename, entries)
	}
}

// streamBatch runs the batch and writes NDJSON lines. Headers are committed on
// the first progress line, so errors raised before any entry was attempted
// still get a regular error response.
func (s *Server) streamBatch(w http.ResponseWriter, r *http.Request, sess domain.Session, source string, entries []domain.Entry) {
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", NDJSONContentType)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}
	progress := func(done, total int) {
		start()
		_ = enc.Encode(progressLine{Type: "progress", Done: done, Total: total, Fraction: float64(done) / float64(total)})
		_ = rc.Flush()
	}
	run, err := s.Evaluate.EvaluateBatch(r.Context(), sess, source, entries, progress)
	if err != nil {
		if !started {
			writeError(w, r, err, nil)
			return
		}
		_, code := errorStatus(err)
		LoggerFrom(r).Warn("batch evaluation aborted", slog.Any("error", err))
		_ = enc.Encode(errorLine{Type: "error", Error: apiError{Code: code, Message: err.Error()}})
		_ = rc.Flush()
		return
	}
	start()
	_ = enc.Encode(resultLine{Type: "result", runResponse: newRunResponse(run)})
	_ = rc.Flush()
}

// CurrentHandler returns the report structure of the caller's current run.
func (s *Server) CurrentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := usecase.CurrentIdentity(r.Context())
		rep, etag, notModified, err := s.Results.Preview(r.Context(), id.UserID, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, no-cache")
		if notModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// ReportHandler downloads the current run as a PDF attachment.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := usecase.CurrentIdentity(r.Context())
		body, contentType, fileName, err := s.Results.Download(r.Context(), id.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// DiscardHandler drops the caller's current run.
func (s *Server) DiscardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := usecase.CurrentIdentity(r.Context())
		if err := s.Results.Discard(r.Context(), id.UserID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HistoryHandler lists the caller's past runs, newest first.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				writeError(w, r, fmt.Errorf("%w: limit must be between 1 and 100", domain.ErrInvalidArgument), map[string]string{"limit": v})
				return
			}
			limit = n
		}
		id, _ := usecase.CurrentIdentity(r.Context())
		runs, err := s.Results.History(r.Context(), id.UserID, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]summaryView, 0, len(runs))
		for _, run := range runs {
			out = append(out, viewSummary(run))
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": out})
	}
}

// ReadyzHandler probes every configured dependency.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]usecase.ReadinessCheck, 0, len(s.Probes))
		ok := true
		for _, p := range s.Probes {
			if p.Check == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				ok = false
				checks = append(checks, usecase.ReadinessCheck{Name: p.Name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, usecase.ReadinessCheck{Name: p.Name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
