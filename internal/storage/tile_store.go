package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
)

// TilesDir is the directory under the cache root that holds every tile.
const TilesDir = "tiles"

// tileExt is used for every format so renderers can rely on {z}/{x}/{y}.png.
const tileExt = ".png"

// TileStore persists tile images under <cache-root>/tiles/<z>/<x>/<y>.png.
type TileStore struct {
	root string
}

// NewTileStore creates a TileStore rooted at cacheRoot. Nothing is created on
// disk until the first Put.
func NewTileStore(cacheRoot string) *TileStore {
	return &TileStore{root: filepath.Join(cacheRoot, TilesDir)}
}

// Root returns the tiles directory.
func (s *TileStore) Root() string {
	return s.root
}

// Path returns the file a tile is stored at.
func (s *TileStore) Path(coord domain.TileCoordinate) string {
	return filepath.Join(s.root, strconv.Itoa(coord.Zoom), strconv.Itoa(coord.X), strconv.Itoa(coord.Y)+tileExt)
}

// Put writes data for coord. The bytes go to a temp file next to the target
// and are renamed over it, so readers see either the old or the new tile.
func (s *TileStore) Put(coord domain.TileCoordinate, data []byte, format domain.ImageFormat) error {
	target := s.Path(coord)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create tile directory %s: %w", errpkg.ErrWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+strconv.Itoa(coord.Y)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file for %s: %w", errpkg.ErrWrite, coord, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s tile %s: %w", errpkg.ErrWrite, format, coord, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close tile %s: %w", errpkg.ErrWrite, coord, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod tile %s: %w", errpkg.ErrWrite, coord, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename tile %s: %w", errpkg.ErrWrite, coord, err)
	}

	return nil
}

// Get reads a stored tile. A missing tile returns an error wrapping os.ErrNotExist.
func (s *TileStore) Get(coord domain.TileCoordinate) ([]byte, error) {
	data, err := os.ReadFile(s.Path(coord))
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", coord, err)
	}
	return data, nil
}

// Exists checks whether a tile is stored.
func (s *TileStore) Exists(coord domain.TileCoordinate) bool {
	info, err := os.Stat(s.Path(coord))
	return err == nil && info.Mode().IsRegular()
}

// Stats walks the cache and returns the number of tiles and their total size.
func (s *TileStore) Stats() (tiles int, bytes int64, err error) {
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != tileExt {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		tiles++
		bytes += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("walk tile cache: %w", err)
	}
	return tiles, bytes, nil
}

// Clear removes the tiles directory and everything under it. An absent
// directory is not an error.
func (s *TileStore) Clear() (removed int, err error) {
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	removed, _, err = s.Stats()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errpkg.ErrWrite, err)
	}

	if err := os.RemoveAll(s.root); err != nil {
		return 0, fmt.Errorf("%w: remove %s: %w", errpkg.ErrWrite, s.root, err)
	}

	return removed, nil
}
