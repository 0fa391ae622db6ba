package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// StartDownloadRequest represents the request body for starting a region download.
type StartDownloadRequest struct {
	Lat    float64 `json:"lat" validate:"gt=-90,lt=90"`
	Lon    float64 `json:"lon" validate:"gte=-180,lte=180"`
	Zoom   string  `json:"zoom" validate:"required,oneof=high low deep deepest"`
	Radius string  `json:"radius" validate:"required,oneof=half_mile mile two_miles"`
}

// Region converts the request into a Region.
func (r StartDownloadRequest) Region() (Region, error) {
	zoom, err := ParseZoomClass(r.Zoom)
	if err != nil {
		return Region{}, err
	}
	radius, err := ParseRadiusClass(r.Radius)
	if err != nil {
		return Region{}, err
	}
	region := Region{
		Center:  LatLon{Lat: r.Lat, Lon: r.Lon},
		MaxZoom: zoom,
		Radius:  radius,
	}
	if err := region.Validate(); err != nil {
		return Region{}, fmt.Errorf("invalid region: %w", err)
	}
	return region, nil
}

// StartDownloadResponse is returned once a job has been accepted.
type StartDownloadResponse struct {
	ID    uuid.UUID `json:"job_id"`
	Total int       `json:"total"`
}

// SetOverlayRequest switches the tile source served to map renderers.
type SetOverlayRequest struct {
	Source OverlaySource `json:"source" validate:"required,oneof=remote local_cache"`
}

// CacheStatsResponse describes the on-disk tile cache.
type CacheStatsResponse struct {
	Tiles int   `json:"tiles"`
	Bytes int64 `json:"bytes"`
}

// ClearCacheResponse reports the outcome of a cache clear.
type ClearCacheResponse struct {
	Removed int `json:"removed"`
}
