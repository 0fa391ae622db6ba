// Package tilemath converts geographic coordinates to slippy-map tile indices.
package tilemath

import (
	"math"

	"github.com/paulmach/orb/maptile"

	"github.com/veranemoloko/offline-tiles/internal/domain"
)

// MaxZoom is the deepest zoom level maptile can address.
const MaxZoom = 32

// Project returns the Web-Mercator tile containing (lon, lat) at zoom.
//
// Latitudes beyond the Mercator limit and lon == 180 would land outside the
// grid, so the result is constrained to [0, 2^zoom). Neighbours derived from
// it by the planner are not constrained.
func Project(lon, lat float64, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180

	fx := math.Floor((lon + 180) / 360 * n)
	fy := math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)

	return constrain(fx, n), constrain(fy, n)
}

func constrain(v, n float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > n-1 {
		return int(n - 1)
	}
	return int(v)
}

// InRange reports whether c addresses a tile that exists on its zoom level.
func InRange(c domain.TileCoordinate) bool {
	if c.Zoom < 0 || c.Zoom > MaxZoom || c.X < 0 || c.Y < 0 {
		return false
	}
	if int64(c.X) > math.MaxUint32 || int64(c.Y) > math.MaxUint32 {
		return false
	}
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Zoom)).Valid()
}

// Center returns the geographic center of an in-range tile.
func Center(c domain.TileCoordinate) domain.LatLon {
	p := maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Zoom)).Center()
	return domain.LatLon{Lat: p.Lat(), Lon: p.Lon()}
}
