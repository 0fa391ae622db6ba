package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
	"github.com/veranemoloko/offline-tiles/internal/tilemath"
	"golang.org/x/sync/singleflight"
)

// TileFetcher fetches a tile from the live provider without storing it.
type TileFetcher interface {
	Fetch(ctx context.Context, coord domain.TileCoordinate) ([]byte, domain.ImageFormat, error)
}

// TileReader reads a tile from the local cache.
type TileReader interface {
	Get(coord domain.TileCoordinate) ([]byte, error)
}

// Tile is an image ready to be handed to a map renderer.
type Tile struct {
	Data        []byte
	ContentType string
	Source      domain.OverlaySource
}

// Switcher serves map tiles from whichever source is selected.
// Remote requests for the same tile that overlap are sent once.
type Switcher struct {
	mu     sync.RWMutex
	source domain.OverlaySource

	remote TileFetcher
	cache  TileReader
	group  singleflight.Group
	logger *slog.Logger
}

// NewSwitcher creates a Switcher starting on source.
func NewSwitcher(source domain.OverlaySource, remote TileFetcher, cache TileReader, logger *slog.Logger) (*Switcher, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: unknown overlay source %q", errpkg.ErrInvalidRequest, source)
	}
	return &Switcher{
		source: source,
		remote: remote,
		cache:  cache,
		logger: logger,
	}, nil
}

// SetSource swaps the tile source.
func (s *Switcher) SetSource(source domain.OverlaySource) error {
	if !source.Valid() {
		return fmt.Errorf("%w: unknown overlay source %q", errpkg.ErrInvalidRequest, source)
	}

	s.mu.Lock()
	prev := s.source
	s.source = source
	s.mu.Unlock()

	if prev != source {
		s.logger.Info("overlay source changed", "from", prev, "to", source)
	}
	return nil
}

// Source returns the selected tile source.
func (s *Switcher) Source() domain.OverlaySource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Tile returns coord from the selected source. When the remote provider is
// unreachable the cached copy is served instead.
func (s *Switcher) Tile(ctx context.Context, coord domain.TileCoordinate) (Tile, error) {
	if !tilemath.InRange(coord) {
		return Tile{}, fmt.Errorf("%w: tile %s out of range", errpkg.ErrInvalidRequest, coord)
	}

	if s.Source() == domain.OverlayLocalCache {
		return s.fromCache(coord)
	}

	data, err := s.fetchRemote(ctx, coord)
	if err == nil {
		return newTile(data, domain.OverlayRemote), nil
	}
	if !errors.Is(err, errpkg.ErrNetwork) || ctx.Err() != nil {
		return Tile{}, err
	}

	tile, cacheErr := s.fromCache(coord)
	if cacheErr != nil {
		return Tile{}, fmt.Errorf("%w; cache fallback: %w", err, cacheErr)
	}
	s.logger.Debug("provider unreachable, served cached tile", "tile", coord.String())
	return tile, nil
}

func (s *Switcher) fromCache(coord domain.TileCoordinate) (Tile, error) {
	data, err := s.cache.Get(coord)
	if err != nil {
		return Tile{}, err
	}
	return newTile(data, domain.OverlayLocalCache), nil
}

func (s *Switcher) fetchRemote(ctx context.Context, coord domain.TileCoordinate) ([]byte, error) {
	// The shared fetch outlives any single caller; the fetcher bounds it with its own timeout.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(coord.String(), func() (interface{}, error) {
		data, _, err := s.remote.Fetch(shared, coord)
		return data, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTile(data []byte, source domain.OverlaySource) Tile {
	return Tile{
		Data:        data,
		ContentType: http.DetectContentType(data),
		Source:      source,
	}
}
