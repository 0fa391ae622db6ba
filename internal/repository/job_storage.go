package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
)

// JobStorage keeps the job history in memory and mirrors it to a JSON file.
// Records are copied on the way in and out, so callers never share them.
type JobStorage struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.JobRecord
	file string

	// serializes file writes so an older snapshot never lands after a newer one
	saveMu sync.Mutex
}

var _ JobRepo = (*JobStorage)(nil)

// NewJobStorage creates a new JobStorage and loads jobs from the file if it exists.
func NewJobStorage(filePath string) (*JobStorage, error) {
	repo := &JobStorage{
		jobs: make(map[uuid.UUID]*domain.JobRecord),
		file: filepath.Clean(filePath),
	}

	if err := repo.restoreJobs(); err != nil {
		return nil, fmt.Errorf("failed to load state from file: %w", err)
	}

	slog.Info("job repository initialized", "file_path", repo.file, "jobs_count", len(repo.jobs))
	return repo, nil
}

func (r *JobStorage) restoreJobs() error {
	if isFileNotExist(r.file) {
		slog.Info("state file does not exist, starting with empty state", "file_path", r.file)
		return nil
	}

	data, err := os.ReadFile(r.file)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("state file is empty", "file_path", r.file)
		return nil
	}

	var jobs []*domain.JobRecord
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	for _, job := range jobs {
		r.jobs[job.ID] = job
	}

	slog.Info("state loaded from file", "jobs_count", len(jobs), "file_path", r.file)
	return nil
}

func isFileNotExist(filePath string) bool {
	_, err := os.Stat(filePath)
	return os.IsNotExist(err)
}

func (r *JobStorage) persistJobs() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	jobs := r.sortedLocked()
	data, err := json.MarshalIndent(jobs, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("state saved to file", "jobs_count", len(jobs), "file_path", r.file)
	return nil
}

// sortedLocked returns the records oldest first. r.mu must be held.
func (r *JobStorage) sortedLocked() []*domain.JobRecord {
	jobs := make([]*domain.JobRecord, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID.String() < jobs[j].ID.String()
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// CreateJob adds a new job record and persists it to the file.
func (r *JobStorage) CreateJob(ctx context.Context, job *domain.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := *job
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	r.mu.Lock()
	r.jobs[record.ID] = &record
	r.mu.Unlock()

	if err := r.persistJobs(); err != nil {
		return fmt.Errorf("failed to save state after creating job: %w", err)
	}

	slog.Debug("job created and saved", "job_id", record.ID)
	return nil
}

// GetJob retrieves a job record by ID.
func (r *JobStorage) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	job, exists := r.jobs[id]
	r.mu.RUnlock()

	if !exists {
		return nil, errpkg.ErrJobNotFound
	}
	record := *job
	return &record, nil
}

// UpdateJob replaces an existing job record and persists it to the file.
func (r *JobStorage) UpdateJob(ctx context.Context, job *domain.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := *job
	record.UpdatedAt = time.Now()

	r.mu.Lock()
	old, exists := r.jobs[record.ID]
	if !exists {
		r.mu.Unlock()
		return errpkg.ErrJobNotFound
	}
	record.CreatedAt = old.CreatedAt
	r.jobs[record.ID] = &record
	r.mu.Unlock()

	if err := r.persistJobs(); err != nil {
		return fmt.Errorf("failed to save state after updating job: %w", err)
	}

	slog.Debug("job updated and saved", "job_id", record.ID, "status", record.Status)
	return nil
}

// GetJobsByStatus returns all job records with the specified status, oldest first.
func (r *JobStorage) GetJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var filtered []*domain.JobRecord
	for _, job := range r.sortedLocked() {
		if job.Status == status {
			record := *job
			filtered = append(filtered, &record)
		}
	}
	r.mu.RUnlock()

	return filtered, nil
}

// ListJobs returns every job record, oldest first.
func (r *JobStorage) ListJobs(ctx context.Context) ([]*domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	sorted := r.sortedLocked()
	jobs := make([]*domain.JobRecord, 0, len(sorted))
	for _, job := range sorted {
		record := *job
		jobs = append(jobs, &record)
	}
	r.mu.RUnlock()

	return jobs, nil
}
