package service

import (
	"github.com/google/uuid"
	"github.com/veranemoloko/offline-tiles/internal/domain"
)

// ProgressReporter receives the lifecycle events of download jobs.
//
// Calls are made one at a time, in order, from a goroutine owned by the
// engine. A reporter may call back into the engine. Per job the sequence is
// OnStart, zero or more OnProgress with non-decreasing fractions, then at most
// one of OnSuccess, OnFailure or OnCancelled.
type ProgressReporter interface {
	OnStart(job domain.JobSnapshot)
	OnProgress(id uuid.UUID, fraction float64)
	OnSuccess(id uuid.UUID)
	OnFailure(id uuid.UUID, err error)
	OnCancelled(id uuid.UUID)
}

// ReporterFuncs adapts plain functions to a ProgressReporter. Nil fields are skipped.
type ReporterFuncs struct {
	Start     func(job domain.JobSnapshot)
	Progress  func(id uuid.UUID, fraction float64)
	Success   func(id uuid.UUID)
	Failure   func(id uuid.UUID, err error)
	Cancelled func(id uuid.UUID)
}

var _ ProgressReporter = ReporterFuncs{}

func (f ReporterFuncs) OnStart(job domain.JobSnapshot) {
	if f.Start != nil {
		f.Start(job)
	}
}

func (f ReporterFuncs) OnProgress(id uuid.UUID, fraction float64) {
	if f.Progress != nil {
		f.Progress(id, fraction)
	}
}

func (f ReporterFuncs) OnSuccess(id uuid.UUID) {
	if f.Success != nil {
		f.Success(id)
	}
}

func (f ReporterFuncs) OnFailure(id uuid.UUID, err error) {
	if f.Failure != nil {
		f.Failure(id, err)
	}
}

func (f ReporterFuncs) OnCancelled(id uuid.UUID) {
	if f.Cancelled != nil {
		f.Cancelled(id)
	}
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) OnStart(domain.JobSnapshot) {}
func (NopReporter) OnProgress(uuid.UUID, float64) {}
func (NopReporter) OnSuccess(uuid.UUID) {}
func (NopReporter) OnFailure(uuid.UUID, error) {}
func (NopReporter) OnCancelled(uuid.UUID) {}
