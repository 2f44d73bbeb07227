package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/database"
	"github.com/playtrack/playtrack/internal/identifier"
	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/internal/reporter"
	"github.com/playtrack/playtrack/internal/tracker"
	"github.com/playtrack/playtrack/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Controller is the part of the tracker the API drives.
type Controller interface {
	State() tracker.State
	IsPolling() bool
	CurrentSessionView() *models.SessionView
	BeginManualSession(ctx context.Context, appID uint) (*models.SessionView, error)
	EndManualSession(ctx context.Context) error
	SetSessionNote(note string) error
	Candidates(ctx context.Context) []identifier.UnboundMatch
	RegisterUserApp(in database.NewUserApp) (*models.UserApp, error)
	AddManualTime(appID uint, seconds int64) (*models.UserApp, error)
	OnSettingsUpdated()
}

type Handler struct {
	config     *config.Config
	controller Controller
	repo       *database.Repository
	settings   *database.Settings
	reporter   *reporter.Reporter
	clock      clockwork.Clock
}

func NewHandler(cfg *config.Config, controller Controller, repo *database.Repository, settings *database.Settings, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		config:     cfg,
		controller: controller,
		repo:       repo,
		settings:   settings,
		reporter:   reporter.New(cfg, repo, clock),
		clock:      clock,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(allowAnyOrigin)

			r.Get("/status", h.handleStatus)
			r.Get("/candidates", h.handleCandidates)
			r.Get("/apps", h.handleListApps)
			r.Get("/report", h.handleReport)
			r.Get("/settings/{owner}/{key}", h.handleGetSetting)
		})

		// Writes take JSON only. A cross-origin page can send a form or
		// text/plain body without a preflight, but not JSON.
		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))

			r.Post("/sessions/manual", h.handleBeginManual)
			r.Delete("/sessions/manual", h.handleEndManual)
			r.Put("/sessions/current/note", h.handleSessionNote)

			r.Post("/apps", h.handleRegisterApp)
			r.Post("/apps/{id}/time", h.handleAddTime)

			r.Post("/settings/reload", h.handleSettingsReload)
			r.Put("/settings/{owner}/{key}", h.handleSetSetting)
			r.Post("/settings/{owner}/{key}", h.handleAppendSetting)
		})
	})

	return r
}

// allowAnyOrigin lets pages on any origin read the GET endpoints.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("api request")
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   h.clock.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"state":         h.controller.State().String(),
		"polling":       h.controller.IsPolling(),
		"poll_interval": h.config.Tracker.PollInterval.String(),
		"database_path": h.config.Database.Path,
		"session":       h.controller.CurrentSessionView(),
	}
	respondJSON(w, http.StatusOK, status)
}

type manualRequest struct {
	AppID uint `json:"app_id"`
}

func (h *Handler) handleBeginManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.AppID == 0 {
		respondError(w, http.StatusBadRequest, errors.New("app_id is required"))
		return
	}

	view, err := h.controller.BeginManualSession(r.Context(), req.AppID)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleEndManual(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.EndManualSession(r.Context()); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleSessionNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.controller.SetSessionNote(req.Note); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates := h.controller.Candidates(r.Context())
	if candidates == nil {
		candidates = []identifier.UnboundMatch{}
	}
	respondJSON(w, http.StatusOK, candidates)
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.repo.ListApplications()
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("failed to list applications: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, apps)
}

type registerRequest struct {
	Name             string `json:"name"`
	AppID            uint   `json:"app_id"`
	Note             string `json:"note"`
	Path             string `json:"path"`
	IdentifierPlugin string `json:"identifier_plugin"`
	IdentifierData   string `json:"identifier_data"`
	InitialRuntime   int64  `json:"initial_runtime"`
	WindowText       string `json:"window_text"`
}

func (h *Handler) handleRegisterApp(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.AppID == 0 && strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, errors.New("name or app_id is required"))
		return
	}
	if req.InitialRuntime < 0 {
		respondError(w, http.StatusBadRequest, errors.New("initial_runtime must not be negative"))
		return
	}

	ua, err := h.controller.RegisterUserApp(database.NewUserApp{
		AppName:          req.Name,
		AppID:            req.AppID,
		Note:             req.Note,
		Path:             req.Path,
		IdentifierPlugin: req.IdentifierPlugin,
		IdentifierData:   req.IdentifierData,
		InitialRuntime:   req.InitialRuntime,
		WindowText:       req.WindowText,
	})
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, ua)
}

type timeRequest struct {
	Seconds int64 `json:"seconds"`
}

func (h *Handler) handleAddTime(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid application id %q", chi.URLParam(r, "id")))
		return
	}

	var req timeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ua, err := h.controller.AddManualTime(uint(id), req.Seconds)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, ua)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Projection()
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("failed to generate report: %w", err))
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		respondReportHTML(w, report)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondReportHTML(w http.ResponseWriter, report *models.Report) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if len(report.Apps) == 0 {
		_, _ = w.Write([]byte(`<div class="loading">No data available</div>`))
		return
	}

	var b strings.Builder
	b.WriteString(`<div class="listing">`)
	for _, app := range report.Apps {
		var share float64
		if report.TotalSeconds > 0 {
			share = float64(app.Runtime) / float64(report.TotalSeconds) * 100.0
		}
		fmt.Fprintf(&b, `
		<div class="app-item" style="--bar-width: %.1f%%">
			<span class="app-name">%s</span>
			<span class="app-time">%s</span>
		</div>`, share, html.EscapeString(app.Name), utils.FormatRoundedUnit(app.Runtime))
	}
	b.WriteString(`</div>`)
	fmt.Fprintf(&b, `<div class="total">Total: %s</div>`, utils.FormatRoundedUnit(report.TotalSeconds))

	_, _ = w.Write([]byte(b.String()))
}

func (h *Handler) handleSettingsReload(w http.ResponseWriter, r *http.Request) {
	h.controller.OnSettingsUpdated()
	w.WriteHeader(http.StatusNoContent)
}

type settingResponse struct {
	Owner  string   `json:"owner"`
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

func (h *Handler) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	owner, key := chi.URLParam(r, "owner"), chi.URLParam(r, "key")

	values, err := h.settings.GetList(owner, key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(values) == 0 {
		respondError(w, http.StatusNotFound, fmt.Errorf("setting %s.%s is not set", owner, key))
		return
	}
	respondJSON(w, http.StatusOK, settingResponse{Owner: owner, Key: key, Values: values})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (h *Handler) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	h.writeSetting(w, r, h.settings.Set)
}

func (h *Handler) handleAppendSetting(w http.ResponseWriter, r *http.Request) {
	h.writeSetting(w, r, h.settings.Append)
}

func (h *Handler) writeSetting(w http.ResponseWriter, r *http.Request, write func(owner, key, value string) error) {
	owner, key := chi.URLParam(r, "owner"), chi.URLParam(r, "key")

	var req settingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := write(owner, key, req.Value); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	h.controller.OnSettingsUpdated()

	values, err := h.settings.GetList(owner, key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, settingResponse{Owner: owner, Key: key, Values: values})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrSessionInProgress), errors.Is(err, tracker.ErrNotManual),
		errors.Is(err, database.ErrReplaceList):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrNoApp), errors.Is(err, tracker.ErrNoSession), database.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("api request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("error encoding JSON")
	}
}
