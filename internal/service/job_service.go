package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
	"github.com/veranemoloko/offline-tiles/internal/metrics"
	"github.com/veranemoloko/offline-tiles/internal/repository"
	"github.com/veranemoloko/offline-tiles/internal/validation"
)

type jobEventType int

const (
	eventJobStarted jobEventType = iota
	eventJobProgress
	eventJobSucceeded
	eventJobFailed
	eventJobCancelled
)

type jobEvent struct {
	Type     jobEventType
	JobID    uuid.UUID
	Job      domain.JobSnapshot
	Fraction float64
	Err      error
}

// interruptedReason marks records left running by a previous process.
const interruptedReason = "interrupted"

// JobService runs region downloads on a DownloadEngine and keeps their history
// in a JobRepo. Engine events are applied to the repository by a single
// goroutine, in the order the engine reported them.
type JobService struct {
	repo    repository.JobRepo
	engine  *DownloadEngine
	planner RegionPlanner
	cache   TileCache
	logger  *slog.Logger

	eventChan    chan jobEvent
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	// last persisted whole percent per job, owned by eventProcessor
	persisted map[uuid.UUID]int
}

var _ ProgressReporter = (*JobService)(nil)

// NewJobService creates the service together with the engine it drives.
func NewJobService(repo repository.JobRepo, cfg EngineConfig, logger *slog.Logger) *JobService {
	s := &JobService{
		repo:         repo,
		planner:      cfg.Planner,
		cache:        cfg.Cache,
		logger:       logger,
		eventChan:    make(chan jobEvent, 100),
		shutdownChan: make(chan struct{}),
		persisted:    make(map[uuid.UUID]int),
	}
	s.engine = NewDownloadEngine(cfg, s, logger)

	s.wg.Add(1)
	go s.eventProcessor()

	return s
}

// Engine returns the engine the service drives.
func (s *JobService) Engine() *DownloadEngine {
	return s.engine
}

// StartDownload validates req and starts a region download, superseding any
// running one.
func (s *JobService) StartDownload(ctx context.Context, req *domain.StartDownloadRequest) (domain.StartDownloadResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.StartDownloadResponse{}, err
	}

	if err := validation.Struct(req); err != nil {
		return domain.StartDownloadResponse{}, fmt.Errorf("%w: %w", errpkg.ErrInvalidRequest, err)
	}
	region, err := req.Region()
	if err != nil {
		return domain.StartDownloadResponse{}, fmt.Errorf("%w: %w", errpkg.ErrInvalidRequest, err)
	}

	id, err := s.engine.StartDownload(region)
	if err != nil {
		return domain.StartDownloadResponse{}, err
	}

	return domain.StartDownloadResponse{
		ID:    id,
		Total: s.planner.Count(int(region.MaxZoom), region.Radius),
	}, nil
}

// StopDownload cancels the running download. It reports whether a job was
// running; stopping with nothing running is a no-op.
func (s *JobService) StopDownload() bool {
	if err := s.engine.StopDownload(); err != nil {
		if errors.Is(err, errpkg.ErrNotRunning) {
			s.logger.Debug("stop requested with no running download")
		}
		return false
	}
	return true
}

// GetJob returns the record of a job. Counters of the running job are read
// live from the engine.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	record, err := s.repo.GetJob(ctx, id)
	snap, running := s.engine.Current()
	running = running && snap.ID == id

	if err != nil {
		if errors.Is(err, errpkg.ErrJobNotFound) && running {
			return recordFromSnapshot(snap), nil
		}
		return nil, err
	}

	if running && record.Status == domain.JobStatusRunning {
		record.Completed = snap.Completed
		record.Progress = snap.Fraction()
	}
	return record, nil
}

// ListJobs returns the job history, oldest first.
func (s *JobService) ListJobs(ctx context.Context) ([]*domain.JobRecord, error) {
	return s.repo.ListJobs(ctx)
}

// CurrentJob returns the job the engine is running, or ErrNotRunning.
func (s *JobService) CurrentJob(ctx context.Context) (domain.JobSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.JobSnapshot{}, err
	}
	snap, ok := s.engine.Current()
	if !ok {
		return domain.JobSnapshot{}, errpkg.ErrNotRunning
	}
	return snap, nil
}

// ClearCache deletes every cached tile and waits for the result.
func (s *JobService) ClearCache(ctx context.Context) (int, error) {
	type result struct {
		removed int
		err     error
	}
	ch := make(chan result, 1)

	s.engine.ClearCache(func(removed int, err error) {
		ch <- result{removed: removed, err: err}
	})

	select {
	case r := <-ch:
		return r.removed, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// CacheStats reports how many tiles are cached and their total size.
func (s *JobService) CacheStats(ctx context.Context) (domain.CacheStatsResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.CacheStatsResponse{}, err
	}
	tiles, size, err := s.cache.Stats()
	if err != nil {
		return domain.CacheStatsResponse{}, err
	}
	return domain.CacheStatsResponse{Tiles: tiles, Bytes: size}, nil
}

// RecoverInterruptedJobs marks jobs a previous process left running or
// pending as cancelled. It returns how many were marked.
func (s *JobService) RecoverInterruptedJobs(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range []domain.JobStatus{domain.JobStatusRunning, domain.JobStatusPending} {
		jobs, err := s.repo.GetJobsByStatus(ctx, status)
		if err != nil {
			return recovered, fmt.Errorf("failed to list %s jobs: %w", status, err)
		}

		for _, job := range jobs {
			job.Status = domain.JobStatusCancelled
			job.Error = interruptedReason
			if err := s.repo.UpdateJob(ctx, job); err != nil {
				return recovered, fmt.Errorf("failed to update job %s: %w", job.ID, err)
			}
			recovered++
			s.logger.Info("interrupted job marked cancelled", "job_id", job.ID, "completed", job.Completed, "total", job.Total)
		}
	}
	return recovered, nil
}

func (s *JobService) OnStart(job domain.JobSnapshot) {
	s.send(jobEvent{Type: eventJobStarted, JobID: job.ID, Job: job})
}

func (s *JobService) OnProgress(id uuid.UUID, fraction float64) {
	s.send(jobEvent{Type: eventJobProgress, JobID: id, Fraction: fraction})
}

func (s *JobService) OnSuccess(id uuid.UUID) {
	s.send(jobEvent{Type: eventJobSucceeded, JobID: id})
}

func (s *JobService) OnFailure(id uuid.UUID, err error) {
	s.send(jobEvent{Type: eventJobFailed, JobID: id, Err: err})
}

func (s *JobService) OnCancelled(id uuid.UUID) {
	s.send(jobEvent{Type: eventJobCancelled, JobID: id})
}

func (s *JobService) send(event jobEvent) {
	select {
	case s.eventChan <- event:
	case <-s.shutdownChan:
		s.logger.Warn("job event dropped during shutdown", "job_id", event.JobID)
	}
}

func (s *JobService) eventProcessor() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.eventChan:
			s.handleEvent(event)

		case <-s.shutdownChan:
			for {
				select {
				case event := <-s.eventChan:
					s.handleEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (s *JobService) handleEvent(event jobEvent) {
	ctx := context.Background()

	if event.Type == eventJobStarted {
		metrics.JobsStarted.Inc()
		record := recordFromSnapshot(event.Job)
		if err := s.repo.CreateJob(ctx, record); err != nil {
			s.logger.Error("failed to save job",
				"error", err,
				"job_id", event.JobID,
			)
			return
		}
		s.persisted[event.JobID] = 0
		s.logger.Debug("job saved to storage", "job_id", event.JobID)
		return
	}

	record, err := s.repo.GetJob(ctx, event.JobID)
	if err != nil {
		s.logger.Error("failed to get job for update",
			"error", err,
			"job_id", event.JobID,
		)
		return
	}

	switch event.Type {
	case eventJobProgress:
		percent := int(event.Fraction * 100)
		if last, ok := s.persisted[event.JobID]; ok && percent <= last {
			return
		}
		s.persisted[event.JobID] = percent
		record.Progress = event.Fraction
		record.Completed = int(math.Round(event.Fraction * float64(record.Total)))

	case eventJobSucceeded:
		metrics.JobsSucceeded.Inc()
		record.Status = domain.JobStatusSucceeded
		record.Progress = 1
		record.Completed = record.Total
		delete(s.persisted, event.JobID)
		s.logger.Info("job completed successfully", "job_id", event.JobID, "tiles", record.Total)

	case eventJobFailed:
		metrics.JobsFailed.Inc()
		record.Status = domain.JobStatusFailed
		if event.Err != nil {
			record.Error = event.Err.Error()
		}
		delete(s.persisted, event.JobID)
		s.logger.Warn("job failed", "job_id", event.JobID, "error", event.Err)

	case eventJobCancelled:
		metrics.JobsCancelled.Inc()
		record.Status = domain.JobStatusCancelled
		delete(s.persisted, event.JobID)
		s.logger.Info("job cancelled", "job_id", event.JobID)
	}

	if err := s.repo.UpdateJob(ctx, record); err != nil {
		s.logger.Error("failed to save job update",
			"error", err,
			"job_id", event.JobID,
			"status", record.Status,
		)
		return
	}
	s.logger.Debug("job state updated",
		"job_id", event.JobID,
		"status", record.Status,
		"progress", record.Progress,
	)
}

// Shutdown stops the engine, then flushes the pending job events.
func (s *JobService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down job service")

	engineErr := s.engine.Shutdown(ctx)

	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("job service shutdown timed out")
		return ctx.Err()
	}

	if engineErr != nil {
		return engineErr
	}
	s.logger.Info("job service shutdown completed")
	return nil
}

func recordFromSnapshot(snap domain.JobSnapshot) *domain.JobRecord {
	return &domain.JobRecord{
		ID:        snap.ID,
		Region:    snap.Region,
		Total:     snap.Total,
		Completed: snap.Completed,
		Progress:  snap.Fraction(),
		Status:    snap.Status,
	}
}
