package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/doctext"
	"github.com/sells-group/insights-cli/internal/fetcher"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/monitoring"
	"github.com/sells-group/insights-cli/internal/pipeline"
	"github.com/sells-group/insights-cli/internal/store"
	"github.com/sells-group/insights-cli/internal/survey"
)

const (
	maxRequestBytes = 32 << 20
	runIDHeader     = "X-Run-ID"
)

// buildRouter wires the HTTP API. st and docs may be nil, in which case the
// routes that need them answer 503.
func buildRouter(rec *pipeline.Recorder, st store.Store, docs *doctext.Reader, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{runIDHeader},
		MaxAge:         300,
	}))

	h := &apiHandler{rec: rec, store: st, docs: docs}
	if st != nil {
		h.collector = monitoring.NewCollector(st)
	}
	r.Get("/healthz", h.health)
	r.Post("/extract", h.extract)
	r.Post("/surveys/import", h.importSurvey)
	r.Post("/files/extract-text", h.extractText)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/metrics", h.metrics)
	return r
}

type apiHandler struct {
	rec       *pipeline.Recorder
	store     store.Store
	collector *monitoring.Collector
	docs      *doctext.Reader
}

func (h *apiHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.rec.Pipeline().Health())
}

func (h *apiHandler) extract(w http.ResponseWriter, r *http.Request) {
	var req model.AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runID, results, stats := h.rec.Run(r.Context(), req)
	if runID != "" {
		w.Header().Set(runIDHeader, runID)
	}

	zap.L().Info("extract request complete",
		zap.String("run_id", runID),
		zap.Int("files", stats.Files),
		zap.Int("insights", stats.Insights),
		zap.Int64("duration_ms", stats.DurationMs),
	)
	writeJSON(w, http.StatusOK, results)
}

// readUpload returns the name and bytes of the multipart field "file". It
// writes the 400 response itself when ok is false.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return "", nil, false
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return "", nil, false
	}
	return header.Filename, data, true
}

func (h *apiHandler) importSurvey(w http.ResponseWriter, r *http.Request) {
	name, data, ok := readUpload(w, r)
	if !ok {
		return
	}

	rows, err := fetcher.ReadSheet(r.Context(), name, data)
	if err != nil {
		zap.L().Warn("survey import: read sheet", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	imp, err := survey.FromRows(rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (h *apiHandler) extractText(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "document reader not configured")
		return
	}
	name, data, ok := readUpload(w, r)
	if !ok {
		return
	}

	text, err := h.docs.Text(r.Context(), name, data)
	if eris.Is(err, doctext.ErrUnsupportedDocument) {
		writeError(w, http.StatusBadRequest, "unsupported file type; use .pdf, .docx, .txt or .md")
		return
	}
	if err != nil {
		zap.L().Warn("extract text", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "could not extract text from file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *apiHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	filter, err := parseRunFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *apiHandler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *apiHandler) metrics(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	snap, err := h.collector.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// parseRunFilter reads status, filename, since (a duration), limit and
// offset from the query string.
func parseRunFilter(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:   model.RunStatus(q.Get("status")),
		Filename: q.Get("filename"),
	}

	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return filter, eris.New("since must be a duration like 24h")
		}
		filter.CreatedAfter = time.Now().Add(-d)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, eris.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, eris.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
