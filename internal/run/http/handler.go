package runhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/platform/httpx"
	"github.com/saftbridge/saftbridge/internal/run"
)

type runRegistry interface {
	Create(ctx context.Context, rec run.Run) error
	Get(ctx context.Context, id uuid.UUID) (run.Run, error)
	ListRecent(ctx context.Context, limit int) ([]run.Run, error)
	DiagnosticsByRun(ctx context.Context, id uuid.UUID) ([]run.Diagnostic, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, finishedAt time.Time) error
}

type runEnqueuer interface {
	EnqueueExportRun(ctx context.Context, runID uuid.UUID) error
}

// Handler wires the export run API: registering runs, handing them to
// the worker queue and reporting their progress.
type Handler struct {
	logger    *slog.Logger
	company   string
	registry  runRegistry
	enqueuer  runEnqueuer
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs a run HTTP handler. The company name labels
// runs registered without an explicit one.
func NewHandler(logger *slog.Logger, company string, registry runRegistry, enqueuer runEnqueuer) *Handler {
	return &Handler{
		logger:    logger,
		company:   company,
		registry:  registry,
		enqueuer:  enqueuer,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers the export run routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/exports", h.createExport)
	r.Get("/exports", h.listExports)
	r.Get("/exports/{runID}", h.getExport)
	r.Get("/exports/{runID}/artifact", h.downloadArtifact)
}

type createExportRequest struct {
	Company     string `json:"company"`
	StartYear   int    `json:"start_year" validate:"required,min=1900,max=9999"`
	StartPeriod int    `json:"start_period" validate:"min=0,max=100"`
	EndYear     int    `json:"end_year" validate:"required,min=1900,max=9999"`
	EndPeriod   int    `json:"end_period" validate:"min=0,max=100"`
	Policy      string `json:"policy"`
}

type runResponse struct {
	ID             string               `json:"id"`
	Company        string               `json:"company"`
	WindowStart    string               `json:"window_start"`
	WindowEnd      string               `json:"window_end"`
	Policy         string               `json:"policy,omitempty"`
	Status         string               `json:"status"`
	LinesProcessed int                  `json:"lines_processed"`
	LinesSkipped   int                  `json:"lines_skipped"`
	ArtifactPath   string               `json:"artifact_path,omitempty"`
	ArtifactDigest string               `json:"artifact_digest,omitempty"`
	Error          string               `json:"error,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	FinishedAt     *time.Time           `json:"finished_at,omitempty"`
	Diagnostics    []diagnosticResponse `json:"diagnostics,omitempty"`
}

type diagnosticResponse struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	var payload createExportRequest
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		detail := "invalid payload"
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			detail = "invalid fields: " + strings.Join(fields, ", ")
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return
	}

	window, err := ledger.NewPeriodWindow(payload.StartYear, payload.StartPeriod, payload.EndYear, payload.EndPeriod)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var policy ledger.NormalizationPolicy
	if payload.Policy != "" {
		policy, err = ledger.ParseNormalizationPolicy(payload.Policy)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	company := payload.Company
	if company == "" {
		company = h.company
	}

	rec := run.Run{
		ID:          uuid.New(),
		Company:     company,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Policy:      policy,
		Status:      run.StatusPending,
		CreatedAt:   h.now().UTC(),
	}
	if err := h.registry.Create(r.Context(), rec); err != nil {
		if errors.Is(err, run.ErrWindowBusy) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("register export run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if err := h.enqueuer.EnqueueExportRun(r.Context(), rec.ID); err != nil {
		h.logger.Error("enqueue export run", slog.String("run_id", rec.ID.String()), slog.Any("error", err))
		if markErr := h.registry.MarkFailed(r.Context(), rec.ID, "enqueue failed: "+err.Error(), h.now().UTC()); markErr != nil {
			h.logger.Error("mark run failed", slog.Any("error", markErr))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not enqueue the run")
		return
	}

	httpx.JSON(w, http.StatusAccepted, fromRun(rec, nil))
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "run id must be a UUID")
		return
	}
	rec, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("load export run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	diags, err := h.registry.DiagnosticsByRun(r.Context(), id)
	if err != nil {
		h.logger.Warn("load run diagnostics", slog.String("run_id", id.String()), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, fromRun(rec, diags))
}

func (h *Handler) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "run id must be a UUID")
		return
	}
	rec, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("load export run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if rec.Status != run.StatusSucceeded || rec.ArtifactPath == "" {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "run has no artifact yet")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(rec.ArtifactPath)))
	http.ServeFile(w, r, rec.ArtifactPath)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	recs, err := h.registry.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list export runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]runResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, fromRun(rec, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": items})
}

func fromRun(rec run.Run, diags []run.Diagnostic) runResponse {
	resp := runResponse{
		ID:             rec.ID.String(),
		Company:        rec.Company,
		WindowStart:    string(rec.WindowStart),
		WindowEnd:      string(rec.WindowEnd),
		Policy:         string(rec.Policy),
		Status:         string(rec.Status),
		LinesProcessed: rec.LinesProcessed,
		LinesSkipped:   rec.LinesSkipped,
		ArtifactPath:   rec.ArtifactPath,
		ArtifactDigest: rec.ArtifactDigest,
		Error:          rec.Error,
		CreatedAt:      rec.CreatedAt,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
	}
	for _, d := range diags {
		resp.Diagnostics = append(resp.Diagnostics, diagnosticResponse{Reason: d.Reason, Count: d.Count})
	}
	return resp
}
