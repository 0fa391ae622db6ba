// Package planner enumerates the tiles of a region download.
package planner

import (
	"fmt"

	"github.com/veranemoloko/offline-tiles/internal/domain"
	"github.com/veranemoloko/offline-tiles/internal/tilemath"
)

// Band assigns a half-width to an inclusive range of zoom levels.
// MaxZoom == 0 leaves the band open-ended.
type Band struct {
	MinZoom      int
	MaxZoom      int
	Fixed        int
	RadiusFactor int
}

func (b Band) contains(zoom int) bool {
	return zoom >= b.MinZoom && (b.MaxZoom == 0 || zoom <= b.MaxZoom)
}

// HalfWidth is Fixed + RadiusFactor*radius.
func (b Band) HalfWidth(radius domain.RadiusClass) int {
	return b.Fixed + b.RadiusFactor*int(radius)
}

// DefaultBands: coarse zooms need only the containing tile, fine zooms a
// neighbourhood that grows with the radius class.
var DefaultBands = []Band{
	{MinZoom: 1, MaxZoom: 5, Fixed: 0},
	{MinZoom: 6, MaxZoom: 13, Fixed: 2},
	{MinZoom: 14, MaxZoom: 15, Fixed: 3},
	{MinZoom: 16, MaxZoom: 16, RadiusFactor: 1},
	{MinZoom: 17, MaxZoom: 0, RadiusFactor: 3},
}

// Planner turns a region into an ordered list of tile coordinates.
type Planner struct {
	bands []Band
}

// New validates bands: ordered, contiguous from zoom 1, non-negative, and
// only the last band may be open-ended.
func New(bands []Band) (*Planner, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("no zoom bands")
	}

	next := 1
	for i, b := range bands {
		if b.MinZoom != next {
			return nil, fmt.Errorf("band %d starts at zoom %d, want %d", i, b.MinZoom, next)
		}
		if b.Fixed < 0 || b.RadiusFactor < 0 {
			return nil, fmt.Errorf("band %d has a negative half-width", i)
		}
		if b.MaxZoom == 0 {
			if i != len(bands)-1 {
				return nil, fmt.Errorf("band %d is open-ended but not last", i)
			}
			break
		}
		if b.MaxZoom < b.MinZoom {
			return nil, fmt.Errorf("band %d ends before it starts", i)
		}
		next = b.MaxZoom + 1
	}

	return &Planner{bands: append([]Band(nil), bands...)}, nil
}

// Default returns a Planner over DefaultBands.
func Default() *Planner {
	p, err := New(DefaultBands)
	if err != nil {
		panic(err)
	}
	return p
}

// HalfWidth returns the half-width for zoom, or -1 when no band covers it.
func (p *Planner) HalfWidth(zoom int, radius domain.RadiusClass) int {
	for _, b := range p.bands {
		if b.contains(zoom) {
			return b.HalfWidth(radius)
		}
	}
	return -1
}

// Plan lists every tile of the region: zoom ascending, then x, then y.
// Identical inputs always produce identical sequences.
func (p *Planner) Plan(center domain.LatLon, maxZoom int, radius domain.RadiusClass) []domain.TileCoordinate {
	tiles := make([]domain.TileCoordinate, 0, p.Count(maxZoom, radius))

	for z := 1; z <= maxZoom; z++ {
		r := p.HalfWidth(z, radius)
		if r < 0 {
			continue
		}
		cx, cy := tilemath.Project(center.Lon, center.Lat, z)
		for x := cx - r; x <= cx+r; x++ {
			for y := cy - r; y <= cy+r; y++ {
				tiles = append(tiles, domain.TileCoordinate{Zoom: z, X: x, Y: y})
			}
		}
	}

	return tiles
}

// Count returns len(Plan(...)) without projecting or allocating. The count
// does not depend on the center.
func (p *Planner) Count(maxZoom int, radius domain.RadiusClass) int {
	total := 0
	for z := 1; z <= maxZoom; z++ {
		r := p.HalfWidth(z, radius)
		if r < 0 {
			continue
		}
		side := 2*r + 1
		total += side * side
	}
	return total
}
