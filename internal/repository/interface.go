package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/veranemoloko/offline-tiles/internal/domain"
)

// JobRepo defines the interface for download job history storage.
type JobRepo interface {
	CreateJob(ctx context.Context, job *domain.JobRecord) error
	GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
	UpdateJob(ctx context.Context, job *domain.JobRecord) error
	GetJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.JobRecord, error)
	ListJobs(ctx context.Context) ([]*domain.JobRecord, error)
}
