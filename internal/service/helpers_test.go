package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
)

func makeTempDir(t *testing.T, prefix string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting condition")
}

func pngTile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// testRegion plans 130 tiles: one per zoom for 1..5 and 25 per zoom for 6..10.
func testRegion() domain.Region {
	return domain.Region{
		Center:  domain.LatLon{Lat: 0, Lon: 0},
		MaxZoom: domain.ZoomHigh,
		Radius:  domain.RadiusMile,
	}
}

type event struct {
	kind     string
	id       uuid.UUID
	fraction float64
	total    int
	err      error
}

// recorder is a ProgressReporter that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) OnStart(job domain.JobSnapshot) {
	r.add(event{kind: "start", id: job.ID, total: job.Total})
}

func (r *recorder) OnProgress(id uuid.UUID, fraction float64) {
	r.add(event{kind: "progress", id: id, fraction: fraction})
}

func (r *recorder) OnSuccess(id uuid.UUID) {
	r.add(event{kind: "success", id: id})
}

func (r *recorder) OnFailure(id uuid.UUID, err error) {
	r.add(event{kind: "failure", id: id, err: err})
}

func (r *recorder) OnCancelled(id uuid.UUID) {
	r.add(event{kind: "cancelled", id: id})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) forJob(id uuid.UUID) []event {
	var out []event
	for _, e := range r.all() {
		if e.id == id {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(kind string, id uuid.UUID) int {
	n := 0
	for _, e := range r.forJob(id) {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) has(kind string, id uuid.UUID) func() bool {
	return func() bool { return r.count(kind, id) > 0 }
}

// fakeTiles is a TileDownloader driven by a function.
type fakeTiles struct {
	mu    sync.Mutex
	calls []domain.TileCoordinate
	fn    func(ctx context.Context, coord domain.TileCoordinate) error
}

func (f *fakeTiles) DownloadTile(ctx context.Context, coord domain.TileCoordinate) (domain.TileResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, coord)
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, coord); err != nil {
			return domain.TileResult{Coord: coord}, err
		}
	}
	return domain.TileResult{Coord: coord, Format: domain.FormatPNG, Bytes: 1}, nil
}

func (f *fakeTiles) called() []domain.TileCoordinate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TileCoordinate(nil), f.calls...)
}

// blockUntil returns a tile func that waits for release or cancellation.
func blockUntil(release <-chan struct{}) func(ctx context.Context, coord domain.TileCoordinate) error {
	return func(ctx context.Context, coord domain.TileCoordinate) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", errpkg.ErrNetwork, coord, ctx.Err())
		}
	}
}

func shutdownEngine(t *testing.T, e *DownloadEngine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}
