package domain

import (
	"fmt"
	"strings"
)

// TileCoordinate identifies one raster tile in the slippy-map scheme.
type TileCoordinate struct {
	Zoom int `json:"z"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

// LatLon is a geographic point in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RadiusClass is the tile half-width used at the finest zoom bands.
type RadiusClass int

const (
	RadiusHalfMile RadiusClass = 4
	RadiusMile     RadiusClass = 6
	RadiusTwoMiles RadiusClass = 8
)

var radiusNames = map[RadiusClass]string{
	RadiusHalfMile: "half_mile",
	RadiusMile:     "mile",
	RadiusTwoMiles: "two_miles",
}

func (r RadiusClass) Valid() bool {
	_, ok := radiusNames[r]
	return ok
}

func (r RadiusClass) String() string {
	if name, ok := radiusNames[r]; ok {
		return name
	}
	return fmt.Sprintf("radius(%d)", int(r))
}

// ParseRadiusClass maps a name such as "mile" to its RadiusClass.
func ParseRadiusClass(s string) (RadiusClass, error) {
	for r, name := range radiusNames {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown radius class %q", s)
}

// ZoomClass is the deepest zoom level a region download descends to.
type ZoomClass int

const (
	ZoomHigh    ZoomClass = 10
	ZoomLow     ZoomClass = 12
	ZoomDeep    ZoomClass = 16
	ZoomDeepest ZoomClass = 17
)

var zoomNames = map[ZoomClass]string{
	ZoomHigh:    "high",
	ZoomLow:     "low",
	ZoomDeep:    "deep",
	ZoomDeepest: "deepest",
}

func (z ZoomClass) Valid() bool {
	_, ok := zoomNames[z]
	return ok
}

func (z ZoomClass) String() string {
	if name, ok := zoomNames[z]; ok {
		return name
	}
	return fmt.Sprintf("zoom(%d)", int(z))
}

// ParseZoomClass maps a name such as "deep" to its ZoomClass.
func ParseZoomClass(s string) (ZoomClass, error) {
	for z, name := range zoomNames {
		if strings.EqualFold(s, name) {
			return z, nil
		}
	}
	return 0, fmt.Errorf("unknown zoom class %q", s)
}

// ImageFormat is the raster format a tile body decoded as.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatWebP ImageFormat = "webp"
)

// OverlaySource selects where a map renderer pulls tiles from.
type OverlaySource string

const (
	OverlayRemote     OverlaySource = "remote"
	OverlayLocalCache OverlaySource = "local_cache"
)

func (s OverlaySource) Valid() bool {
	return s == OverlayRemote || s == OverlayLocalCache
}

// TileResult describes one tile fetched and written to the cache.
type TileResult struct {
	Coord  TileCoordinate `json:"tile"`
	Format ImageFormat    `json:"format"`
	Bytes  int            `json:"bytes"`
}
