package ui

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"urnlab/app"
	"urnlab/domain/core"
	"urnlab/internal"
)

// AdminApp is the researcher-facing surface. It runs on its own port,
// separate from the participant API, and only reads session data or triggers
// exports; the experiment protocol itself is never driven from here.
type AdminApp struct {
	router *chi.Mux
	svc    *app.ExperimentService
	logger *internal.Logger
}

// NewAdminApp creates the researcher application
func NewAdminApp(svc *app.ExperimentService, logger *internal.Logger) *AdminApp {
	a := &AdminApp{
		router: chi.NewRouter(),
		svc:    svc,
		logger: logger,
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// setupMiddleware configures HTTP middleware
func (a *AdminApp) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the researcher routes
func (a *AdminApp) setupRoutes() {
	a.router.Get("/sessions", a.handleListSessions)
	a.router.Get("/sessions/{participant}", a.handleSessionDetail)
	a.router.Delete("/sessions/{participant}", a.handleDeleteSession)

	a.router.Get("/sessions/{participant}/download/json", a.handleDownloadJSON)
	a.router.Get("/sessions/{participant}/download/csv", a.handleDownloadCSV)
	a.router.Get("/sessions/{participant}/download/xlsx", a.handleDownloadXLSX)

	a.router.Post("/export_all", a.handleExportAll)
}

// Start starts the researcher server
func (a *AdminApp) Start(addr string) error {
	a.logger.Info("researcher surface listening on %s", addr)
	return http.ListenAndServe(addr, a.router)
}

// Handler exposes the router for tests
func (a *AdminApp) Handler() http.Handler {
	return a.router
}

func (a *AdminApp) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := a.svc.ListSessions(r.Context())
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.renderJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": snaps,
		"count":    len(snaps),
	})
}

func (a *AdminApp) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.GetSnapshot(r.Context(), chi.URLParam(r, "participant"))
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.renderJSON(w, http.StatusOK, snap)
}

func (a *AdminApp) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RemoveSession(r.Context(), chi.URLParam(r, "participant")); err != nil {
		a.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *AdminApp) handleDownloadJSON(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")
	bundle, err := a.svc.FormatRecord(r.Context(), participant)
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.sendAttachment(w, participant, "json", "application/json", bundle.JSON)
}

func (a *AdminApp) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")
	bundle, err := a.svc.FormatRecord(r.Context(), participant)
	if err != nil {
		a.renderError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(bundle.CSVRows); err != nil {
		a.renderError(w, err)
		return
	}
	a.sendAttachment(w, participant, "csv", "text/csv", buf.Bytes())
}

func (a *AdminApp) handleDownloadXLSX(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")
	bundle, err := a.svc.FormatRecord(r.Context(), participant)
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.sendAttachment(w, participant, "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", bundle.XLSX)
}

func (a *AdminApp) handleExportAll(w http.ResponseWriter, r *http.Request) {
	results, err := a.svc.ExportAll(r.Context())
	if err != nil {
		a.logger.Error("bulk export failed: %v", err)
		a.renderJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":    err.Error(),
			"exported": results,
		})
		return
	}
	a.renderJSON(w, http.StatusOK, map[string]interface{}{
		"exported": results,
		"count":    len(results),
	})
}

func (a *AdminApp) sendAttachment(w http.ResponseWriter, participant, ext, contentType string, body []byte) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("participant_%s.%s", participant, ext)))
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		a.logger.Warn("attachment write failed: %v", err)
	}
}

func (a *AdminApp) renderJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("response write failed: %v", err)
	}
}

func (a *AdminApp) renderError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsNotFoundError(err):
		status = http.StatusNotFound
	case core.IsValidationError(err):
		status = http.StatusBadRequest
	case core.IsProtocolError(err):
		status = http.StatusConflict
	}
	a.renderJSON(w, status, map[string]string{"error": err.Error()})
}
