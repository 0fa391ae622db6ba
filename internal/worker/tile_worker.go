package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
	"github.com/veranemoloko/offline-tiles/internal/metrics"
	_ "golang.org/x/image/webp"
)

// TileWriter is the part of the tile store the worker writes through.
type TileWriter interface {
	Put(coord domain.TileCoordinate, data []byte, format domain.ImageFormat) error
}

// Options configures how tiles are fetched.
type Options struct {
	URLTemplate  string
	UserAgent    string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	MaxTileSize  int64
}

// TileWorker fetches single tiles from the provider, decodes them to make
// sure they are images, and stores them in the cache.
type TileWorker struct {
	store      TileWriter
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger
}

// NewTileWorker creates a TileWorker writing into store.
// Per-tile deadlines come from opts.Timeout, not from the HTTP client.
func NewTileWorker(store TileWriter, opts Options, logger *slog.Logger) *TileWorker {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxTileSize <= 0 {
		opts.MaxTileSize = 5 << 20
	}
	return &TileWorker{
		store:      store,
		httpClient: &http.Client{},
		opts:       opts,
		logger:     logger,
	}
}

// TileURL expands the URL template for coord.
func (w *TileWorker) TileURL(coord domain.TileCoordinate) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(coord.Zoom),
		"{x}", strconv.Itoa(coord.X),
		"{y}", strconv.Itoa(coord.Y),
	).Replace(w.opts.URLTemplate)
}

// DownloadTile fetches coord, checks that it decodes, and writes the original
// bytes to the store. The returned error wraps ErrNetwork, ErrDecode or ErrWrite.
func (w *TileWorker) DownloadTile(ctx context.Context, coord domain.TileCoordinate) (domain.TileResult, error) {
	result := domain.TileResult{Coord: coord}
	start := time.Now()
	defer func() {
		metrics.TileFetchDuration.Observe(time.Since(start).Seconds())
	}()

	data, format, err := w.Fetch(ctx, coord)
	if err != nil {
		return result, err
	}
	result.Format = format
	result.Bytes = len(data)

	if err := w.store.Put(coord, data, format); err != nil {
		w.recordFailure(coord, err)
		return result, err
	}

	metrics.TilesStored.Inc()
	metrics.TileBytes.Add(float64(len(data)))
	return result, nil
}

// Fetch downloads and decodes coord without storing it. Network failures are
// retried up to Options.Retries times with exponential backoff.
func (w *TileWorker) Fetch(ctx context.Context, coord domain.TileCoordinate) ([]byte, domain.ImageFormat, error) {
	var (
		data []byte
		err  error
	)

	for attempt := 0; attempt <= w.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := w.opts.RetryBackoff * time.Duration(1<<(attempt-1))
			w.logger.Debug("retrying tile",
				"tile", coord.String(),
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				err = fmt.Errorf("%w: %s: %w", errpkg.ErrNetwork, coord, ctx.Err())
				w.recordFailure(coord, err)
				return nil, "", err
			case <-time.After(delay):
			}
		}

		data, err = w.get(ctx, coord)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		w.recordFailure(coord, err)
		return nil, "", err
	}

	format, err := decode(data)
	if err != nil {
		err = fmt.Errorf("%w: tile %s: %w", errpkg.ErrDecode, coord, err)
		w.recordFailure(coord, err)
		return nil, "", err
	}

	return data, format, nil
}

func (w *TileWorker) get(ctx context.Context, coord domain.TileCoordinate) ([]byte, error) {
	metrics.TilesRequested.Inc()

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	url := w.TileURL(coord)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request for %s: %w", errpkg.ErrNetwork, coord, err)
	}
	if w.opts.UserAgent != "" {
		req.Header.Set("User-Agent", w.opts.UserAgent)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %w", errpkg.ErrNetwork, coord, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: tile %s: bad status: %s", errpkg.ErrNetwork, coord, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, w.opts.MaxTileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read tile %s: %w", errpkg.ErrNetwork, coord, err)
	}
	if int64(len(data)) > w.opts.MaxTileSize {
		return nil, fmt.Errorf("%w: tile %s exceeds %d bytes", errpkg.ErrNetwork, coord, w.opts.MaxTileSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: tile %s: empty body", errpkg.ErrNetwork, coord)
	}

	return data, nil
}

func (w *TileWorker) recordFailure(coord domain.TileCoordinate, err error) {
	kind := FailureKind(err)
	metrics.TilesFailed.WithLabelValues(kind).Inc()

	if kind == "cancelled" {
		w.logger.Debug("tile fetch cancelled", "tile", coord.String())
		return
	}
	w.logger.Error("tile download failed",
		"tile", coord.String(),
		"kind", kind,
		"error", err,
	)
}

// FailureKind classifies a tile error for logs and metrics.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, errpkg.ErrNetwork):
		return "network"
	case errors.Is(err, errpkg.ErrDecode):
		return "decode"
	case errors.Is(err, errpkg.ErrWrite):
		return "write"
	default:
		return "unknown"
	}
}

func decode(data []byte) (domain.ImageFormat, error) {
	_, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	switch name {
	case "png":
		return domain.FormatPNG, nil
	case "jpeg":
		return domain.FormatJPEG, nil
	case "webp":
		return domain.FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", name)
	}
}
