package http

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
	"github.com/veranemoloko/offline-tiles/internal/overlay"
)

// JobServiceI defines the interface for download job business logic.
type JobServiceI interface {
	StartDownload(ctx context.Context, req *domain.StartDownloadRequest) (domain.StartDownloadResponse, error)
	StopDownload() bool
	GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
	ListJobs(ctx context.Context) ([]*domain.JobRecord, error)
	CurrentJob(ctx context.Context) (domain.JobSnapshot, error)
	ClearCache(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (domain.CacheStatsResponse, error)
}

// OverlayI selects and serves the tiles shown by a map renderer.
type OverlayI interface {
	Source() domain.OverlaySource
	SetSource(source domain.OverlaySource) error
	Tile(ctx context.Context, coord domain.TileCoordinate) (overlay.Tile, error)
}

// JobHandler handles HTTP requests for download jobs and the tile cache.
type JobHandler struct {
	jobService JobServiceI
	validator  *validator.Validate
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler with the provided service and logger.
func NewJobHandler(jobService JobServiceI, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		validator:  validator.New(),
		logger:     logger,
	}
}

// StartDownload handles POST /downloads. The job runs in the background.
func (h *JobHandler) StartDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.StartDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.jobService.StartDownload(ctx, &req)
	if err != nil {
		h.logger.Error("failed to start download", "error", err)
		writeServiceError(w, err)
		return
	}

	h.logger.Info("download accepted", "job_id", resp.ID, "total", resp.Total)
	writeJSON(w, http.StatusAccepted, resp)
}

// StopDownload handles DELETE /downloads/current. Stopping when nothing runs
// is not an error.
func (h *JobHandler) StopDownload(w http.ResponseWriter, r *http.Request) {
	if h.jobService.StopDownload() {
		h.logger.Info("download stopped by request")
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListJobs handles GET /downloads.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobService.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*domain.JobRecord{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// CurrentJob handles GET /downloads/current.
func (h *JobHandler) CurrentJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobService.CurrentJob(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    job.ID,
		"region":    job.Region,
		"total":     job.Total,
		"completed": job.Completed,
		"progress":  job.Fraction(),
		"status":    job.Status,
	})
}

// GetJob handles GET /downloads/{jobID}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobIDStr := chi.URLParam(r, "jobID")
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job, err := h.jobService.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, errpkg.ErrJobNotFound) {
			h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ClearCache handles DELETE /cache.
func (h *JobHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.jobService.ClearCache(r.Context())
	if err != nil {
		h.logger.Error("failed to clear cache", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ClearCacheResponse{Removed: removed})
}

// CacheStats handles GET /cache.
func (h *JobHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobService.CacheStats(r.Context())
	if err != nil {
		h.logger.Error("failed to read cache stats", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// OverlayHandler handles HTTP requests for the map overlay.
type OverlayHandler struct {
	overlay   OverlayI
	validator *validator.Validate
	logger    *slog.Logger
}

// NewOverlayHandler creates a new OverlayHandler.
func NewOverlayHandler(overlay OverlayI, logger *slog.Logger) *OverlayHandler {
	return &OverlayHandler{
		overlay:   overlay,
		validator: validator.New(),
		logger:    logger,
	}
}

// GetSource handles GET /overlay.
func (h *OverlayHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.SetOverlayRequest{Source: h.overlay.Source()})
}

// SetSource handles PUT /overlay.
func (h *OverlayHandler) SetSource(w http.ResponseWriter, r *http.Request) {
	var req domain.SetOverlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.overlay.SetSource(req.Source); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetTile handles GET /tiles/{z}/{x}/{y}.png from the selected source.
func (h *OverlayHandler) GetTile(w http.ResponseWriter, r *http.Request) {
	coord, ok := parseTile(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tile coordinate")
		return
	}

	tile, err := h.overlay.Tile(r.Context(), coord)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn("failed to serve tile", "tile", coord.String(), "error", err)
		}
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", tile.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(tile.Data)))
	w.Header().Set("X-Tile-Source", string(tile.Source))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(tile.Data); err != nil {
		h.logger.Debug("failed to write tile", "tile", coord.String(), "error", err)
	}
}

func parseTile(r *http.Request) (domain.TileCoordinate, bool) {
	var coord domain.TileCoordinate
	var err error
	if coord.Zoom, err = strconv.Atoi(chi.URLParam(r, "z")); err != nil {
		return coord, false
	}
	if coord.X, err = strconv.Atoi(chi.URLParam(r, "x")); err != nil {
		return coord, false
	}
	if coord.Y, err = strconv.Atoi(chi.URLParam(r, "y")); err != nil {
		return coord, false
	}
	return coord, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errpkg.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, errpkg.ErrNotRunning):
		writeError(w, http.StatusNotFound, "no download running")
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "tile not cached")
	case errors.Is(err, errpkg.ErrNetwork), errors.Is(err, errpkg.ErrDecode):
		writeError(w, http.StatusBadGateway, "tile provider unavailable")
	case errors.Is(err, errpkg.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
