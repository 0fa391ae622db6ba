package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
	"github.com/veranemoloko/offline-tiles/internal/metrics"
	"github.com/veranemoloko/offline-tiles/internal/tilemath"
	"golang.org/x/sync/errgroup"
)

// RegionPlanner turns a region into the tiles it needs.
type RegionPlanner interface {
	Plan(center domain.LatLon, maxZoom int, radius domain.RadiusClass) []domain.TileCoordinate
	Count(maxZoom int, radius domain.RadiusClass) int
}

// TileDownloader fetches one tile and stores it.
type TileDownloader interface {
	DownloadTile(ctx context.Context, coord domain.TileCoordinate) (domain.TileResult, error)
}

// TileCache is the part of the tile store the services manage.
type TileCache interface {
	Clear() (removed int, err error)
	Stats() (tiles int, bytes int64, err error)
}

// EngineConfig wires a DownloadEngine to its collaborators.
type EngineConfig struct {
	Planner RegionPlanner
	Tiles   TileDownloader
	Cache   TileCache
	Workers int
}

// DownloadEngine runs at most one region download at a time.
type DownloadEngine struct {
	planner  RegionPlanner
	tiles    TileDownloader
	cache    TileCache
	workers  int
	reporter ProgressReporter
	notifier *notifier
	logger   *slog.Logger

	mu      sync.Mutex
	current *job
	closed  bool

	wg sync.WaitGroup
}

// job owns the state of a single region download. Events for the job are
// posted while mu is held and only while status is running, so nothing is
// reported after its terminal event.
type job struct {
	id     uuid.UUID
	region domain.Region
	total  int
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	completed int
	status    domain.JobStatus
}

func (j *job) snapshot() domain.JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *job) snapshotLocked() domain.JobSnapshot {
	return domain.JobSnapshot{
		ID:        j.id,
		Region:    j.region,
		Total:     j.total,
		Completed: j.completed,
		Status:    j.status,
	}
}

// NewDownloadEngine creates an engine reporting to reporter. A nil reporter
// discards events; fewer than one worker means one.
func NewDownloadEngine(cfg EngineConfig, reporter ProgressReporter, logger *slog.Logger) *DownloadEngine {
	if reporter == nil {
		reporter = NopReporter{}
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &DownloadEngine{
		planner:  cfg.Planner,
		tiles:    cfg.Tiles,
		cache:    cfg.Cache,
		workers:  workers,
		reporter: reporter,
		notifier: newNotifier(logger),
		logger:   logger,
	}
}

// StartDownload cancels any running job and starts downloading region.
// It returns as soon as the job is scheduled.
func (e *DownloadEngine) StartDownload(region domain.Region) (uuid.UUID, error) {
	if err := region.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", errpkg.ErrInvalidRequest, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return uuid.Nil, errpkg.ErrShuttingDown
	}

	if prev := e.current; prev != nil {
		if e.cancelJob(prev) {
			e.logger.Info("download superseded", "job_id", prev.id)
		}
		e.current = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:     uuid.New(),
		region: region,
		total:  e.planner.Count(int(region.MaxZoom), region.Radius),
		ctx:    ctx,
		cancel: cancel,
		status: domain.JobStatusRunning,
	}
	e.current = j

	info := j.snapshot()
	e.notifier.post(func() { e.reporter.OnStart(info) })

	e.logger.Info("download started",
		"job_id", j.id,
		"lat", region.Center.Lat,
		"lon", region.Center.Lon,
		"max_zoom", int(region.MaxZoom),
		"radius", region.Radius.String(),
		"total", j.total,
		"workers", e.workers,
	)

	e.wg.Add(1)
	go e.run(j)

	return j.id, nil
}

// StopDownload cancels the running job. It returns ErrNotRunning when there
// is nothing to stop.
func (e *DownloadEngine) StopDownload() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	j := e.current
	if j == nil || !e.cancelJob(j) {
		return errpkg.ErrNotRunning
	}
	e.current = nil

	e.logger.Info("download stopped", "job_id", j.id)
	return nil
}

// cancelJob moves a running job to cancelled and aborts its tasks. It reports
// whether the job was still running.
func (e *DownloadEngine) cancelJob(j *job) bool {
	j.mu.Lock()
	running := j.status == domain.JobStatusRunning
	if running {
		j.status = domain.JobStatusCancelled
		id := j.id
		e.notifier.post(func() { e.reporter.OnCancelled(id) })
	}
	j.mu.Unlock()

	j.cancel()
	return running
}

// Current returns a snapshot of the job the engine is working on.
func (e *DownloadEngine) Current() (domain.JobSnapshot, bool) {
	e.mu.Lock()
	j := e.current
	e.mu.Unlock()

	if j == nil {
		return domain.JobSnapshot{}, false
	}
	return j.snapshot(), true
}

// ClearCache deletes the tile cache in the background and reports the result
// through callback, independently of any download job.
func (e *DownloadEngine) ClearCache(callback func(removed int, err error)) {
	if callback == nil {
		callback = func(int, error) {}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		callback(0, errpkg.ErrShuttingDown)
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		removed, err := e.cache.Clear()
		if err != nil {
			e.logger.Error("cache clear failed", "error", err)
		} else {
			metrics.CacheClears.Inc()
			e.logger.Info("cache cleared", "removed", removed)
		}
		e.notifier.post(func() { callback(removed, err) })
	}()
}

// Shutdown cancels the running job, waits for background work and delivers
// the remaining events.
func (e *DownloadEngine) Shutdown(ctx context.Context) error {
	e.logger.Info("shutting down download engine")

	e.mu.Lock()
	e.closed = true
	if j := e.current; j != nil {
		e.cancelJob(j)
		e.current = nil
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("download engine shutdown timed out")
		return ctx.Err()
	}

	if err := e.notifier.close(ctx); err != nil {
		e.logger.Warn("download engine shutdown timed out")
		return err
	}

	e.logger.Info("download engine shutdown completed")
	return nil
}

// run drives one job: it submits a task per planned tile to a bounded group,
// waits for all of them to settle, then settles the job. Planned tiles outside
// the grid settle without a fetch.
func (e *DownloadEngine) run(j *job) {
	defer e.wg.Done()
	defer j.cancel()

	coords := e.planner.Plan(j.region.Center, int(j.region.MaxZoom), j.region.Radius)

	g, ctx := errgroup.WithContext(j.ctx)
	g.SetLimit(e.workers)

	for _, coord := range coords {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if !tilemath.InRange(coord) {
				// neighbours past the edge of the grid do not exist on any provider
				e.advance(j)
				return nil
			}
			if _, err := e.tiles.DownloadTile(ctx, coord); err != nil {
				e.fail(j, coord, err)
				return err
			}
			e.advance(j)
			return nil
		})
	}

	_ = g.Wait()
	e.finish(j)
}

func (e *DownloadEngine) advance(j *job) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != domain.JobStatusRunning {
		return
	}
	j.completed++
	id, fraction := j.id, float64(j.completed)/float64(j.total)
	e.notifier.post(func() { e.reporter.OnProgress(id, fraction) })
}

// fail latches the first tile error of a job. Later errors, including the
// ones caused by the cancellation below, are dropped.
func (e *DownloadEngine) fail(j *job, coord domain.TileCoordinate, err error) {
	j.mu.Lock()
	if j.status != domain.JobStatusRunning {
		j.mu.Unlock()
		return
	}
	j.status = domain.JobStatusFailed
	id := j.id
	e.notifier.post(func() { e.reporter.OnFailure(id, err) })
	j.mu.Unlock()

	j.cancel()

	e.logger.Error("download failed",
		"job_id", id,
		"tile", coord.String(),
		"tile_center", tilemath.Center(coord),
		"error", err,
	)
}

func (e *DownloadEngine) finish(j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j.mu.Lock()
	if j.status == domain.JobStatusRunning {
		if j.completed == j.total {
			j.status = domain.JobStatusSucceeded
			id := j.id
			e.notifier.post(func() { e.reporter.OnSuccess(id) })
			e.logger.Info("download completed", "job_id", j.id, "tiles", j.total)
		} else {
			j.status = domain.JobStatusFailed
			id, err := j.id, fmt.Errorf("%d of %d tiles settled", j.completed, j.total)
			e.notifier.post(func() { e.reporter.OnFailure(id, err) })
			e.logger.Error("download incomplete", "job_id", j.id, "completed", j.completed, "total", j.total)
		}
	}
	j.mu.Unlock()

	if e.current == j {
		e.current = nil
	}
}
