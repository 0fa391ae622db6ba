package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Region is the input of one download job.
type Region struct {
	Center  LatLon      `json:"center"`
	MaxZoom ZoomClass   `json:"max_zoom"`
	Radius  RadiusClass `json:"radius"`
}

// Validate rejects centers at or beyond the poles, longitudes outside
// [-180, 180] and unknown zoom or radius classes.
func (r Region) Validate() error {
	if !(r.Center.Lat > -90 && r.Center.Lat < 90) {
		return fmt.Errorf("latitude %v out of range (-90, 90)", r.Center.Lat)
	}
	if r.Center.Lon < -180 || r.Center.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", r.Center.Lon)
	}
	if !r.MaxZoom.Valid() {
		return fmt.Errorf("invalid zoom class %d", int(r.MaxZoom))
	}
	if !r.Radius.Valid() {
		return fmt.Errorf("invalid radius class %d", int(r.Radius))
	}
	return nil
}

// JobSnapshot is a point-in-time view of a download job.
type JobSnapshot struct {
	ID        uuid.UUID `json:"job_id"`
	Region    Region    `json:"region"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Status    JobStatus `json:"status"`
}

// Fraction returns completed/total in [0, 1].
func (s JobSnapshot) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// JobRecord is the persisted history entry of a download job.
type JobRecord struct {
	ID        uuid.UUID `json:"job_id"`
	Region    Region    `json:"region"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Progress  float64   `json:"progress"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
