package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veranemoloko/offline-tiles/internal/domain"
	errpkg "github.com/veranemoloko/offline-tiles/internal/errors"
	"github.com/veranemoloko/offline-tiles/internal/overlay"
)

type mockJobService struct {
	started   *domain.StartDownloadRequest
	startErr  error
	running   bool
	stopCalls int
	jobs      map[uuid.UUID]*domain.JobRecord
	removed   int
}

func (m *mockJobService) StartDownload(ctx context.Context, req *domain.StartDownloadRequest) (domain.StartDownloadResponse, error) {
	if m.startErr != nil {
		return domain.StartDownloadResponse{}, m.startErr
	}
	m.started = req
	m.running = true
	return domain.StartDownloadResponse{ID: uuid.New(), Total: 130}, nil
}

func (m *mockJobService) StopDownload() bool {
	m.stopCalls++
	wasRunning := m.running
	m.running = false
	return wasRunning
}

func (m *mockJobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, errpkg.ErrJobNotFound
	}
	return job, nil
}

func (m *mockJobService) ListJobs(ctx context.Context) ([]*domain.JobRecord, error) {
	var jobs []*domain.JobRecord
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (m *mockJobService) CurrentJob(ctx context.Context) (domain.JobSnapshot, error) {
	if !m.running {
		return domain.JobSnapshot{}, errpkg.ErrNotRunning
	}
	return domain.JobSnapshot{ID: uuid.New(), Total: 130, Completed: 13, Status: domain.JobStatusRunning}, nil
}

func (m *mockJobService) ClearCache(ctx context.Context) (int, error) {
	removed := m.removed
	m.removed = 0
	return removed, nil
}

func (m *mockJobService) CacheStats(ctx context.Context) (domain.CacheStatsResponse, error) {
	return domain.CacheStatsResponse{Tiles: m.removed, Bytes: int64(m.removed) * 100}, nil
}

type mockOverlay struct {
	source domain.OverlaySource
	tiles  map[domain.TileCoordinate][]byte
	err    error
}

func (m *mockOverlay) Source() domain.OverlaySource { return m.source }

func (m *mockOverlay) SetSource(source domain.OverlaySource) error {
	m.source = source
	return nil
}

func (m *mockOverlay) Tile(ctx context.Context, coord domain.TileCoordinate) (overlay.Tile, error) {
	if m.err != nil {
		return overlay.Tile{}, m.err
	}
	data, ok := m.tiles[coord]
	if !ok {
		return overlay.Tile{}, fmt.Errorf("read tile %s: %w", coord, fs.ErrNotExist)
	}
	return overlay.Tile{Data: data, ContentType: "image/png", Source: m.source}, nil
}

func newTestRouter(jobs *mockJobService, ov *mockOverlay) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewRouter(jobs, ov, logger)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJobHandler_StartDownload(t *testing.T) {
	jobs := &mockJobService{}
	router := newTestRouter(jobs, &mockOverlay{})

	w := do(t, router, http.MethodPost, "/downloads", domain.StartDownloadRequest{Lat: 52.52, Lon: 13.4, Zoom: "high", Radius: "mile"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	var data map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&data))
	assert.Contains(t, data, "job_id")
	assert.Equal(t, float64(130), data["total"])

	require.NotNil(t, jobs.started)
	assert.Equal(t, "high", jobs.started.Zoom)
	assert.Equal(t, "mile", jobs.started.Radius)
}

func TestJobHandler_StartDownload_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"lat":`},
		{name: "unknown zoom", body: `{"lat":1,"lon":2,"zoom":"street","radius":"mile"}`},
		{name: "missing radius", body: `{"lat":1,"lon":2,"zoom":"high"}`},
		{name: "pole", body: `{"lat":90,"lon":2,"zoom":"high","radius":"mile"}`},
		{name: "longitude", body: `{"lat":1,"lon":200,"zoom":"high","radius":"mile"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &mockJobService{}
			router := newTestRouter(jobs, &mockOverlay{})

			req := httptest.NewRequest(http.MethodPost, "/downloads", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, jobs.started)
		})
	}
}

func TestJobHandler_StartDownload_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid", err: fmt.Errorf("%w: latitude", errpkg.ErrInvalidRequest), status: http.StatusBadRequest},
		{name: "shutting down", err: errpkg.ErrShuttingDown, status: http.StatusServiceUnavailable},
		{name: "unexpected", err: fmt.Errorf("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockJobService{startErr: tt.err}, &mockOverlay{})
			w := do(t, router, http.MethodPost, "/downloads", domain.StartDownloadRequest{Zoom: "low", Radius: "half_mile"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestJobHandler_StopDownload(t *testing.T) {
	jobs := &mockJobService{running: true}
	router := newTestRouter(jobs, &mockOverlay{})

	w := do(t, router, http.MethodDelete, "/downloads/current", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodDelete, "/downloads/current", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 2, jobs.stopCalls)
}

func TestJobHandler_CurrentJob(t *testing.T) {
	jobs := &mockJobService{}
	router := newTestRouter(jobs, &mockOverlay{})

	w := do(t, router, http.MethodGet, "/downloads/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	jobs.running = true
	w = do(t, router, http.MethodGet, "/downloads/current", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var data map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&data))
	assert.Equal(t, 0.1, data["progress"])
	assert.Equal(t, "running", data["status"])
}

func TestJobHandler_GetJob(t *testing.T) {
	id := uuid.New()
	jobs := &mockJobService{jobs: map[uuid.UUID]*domain.JobRecord{
		id: {ID: id, Total: 130, Completed: 130, Progress: 1, Status: domain.JobStatusSucceeded},
	}}
	router := newTestRouter(jobs, &mockOverlay{})

	w := do(t, router, http.MethodGet, "/downloads/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var data domain.JobRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&data))
	assert.Equal(t, id, data.ID)
	assert.Equal(t, domain.JobStatusSucceeded, data.Status)

	w = do(t, router, http.MethodGet, "/downloads/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/downloads/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandler_ListJobs(t *testing.T) {
	router := newTestRouter(&mockJobService{}, &mockOverlay{})

	w := do(t, router, http.MethodGet, "/downloads", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestJobHandler_Cache(t *testing.T) {
	jobs := &mockJobService{removed: 3}
	router := newTestRouter(jobs, &mockOverlay{})

	w := do(t, router, http.MethodGet, "/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tiles":3,"bytes":300}`, w.Body.String())

	w = do(t, router, http.MethodDelete, "/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":3}`, w.Body.String())

	w = do(t, router, http.MethodDelete, "/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":0}`, w.Body.String())
}

func TestOverlayHandler_Source(t *testing.T) {
	ov := &mockOverlay{source: domain.OverlayLocalCache}
	router := newTestRouter(&mockJobService{}, ov)

	w := do(t, router, http.MethodGet, "/overlay", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"source":"local_cache"}`, w.Body.String())

	w = do(t, router, http.MethodPut, "/overlay", domain.SetOverlayRequest{Source: domain.OverlayRemote})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.OverlayRemote, ov.source)

	w = do(t, router, http.MethodPut, "/overlay", map[string]string{"source": "satellite"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.OverlayRemote, ov.source)
}

func TestOverlayHandler_GetTile(t *testing.T) {
	coord := domain.TileCoordinate{Zoom: 3, X: 4, Y: 2}
	body := []byte("\x89PNG\r\n\x1a\nfake")
	ov := &mockOverlay{
		source: domain.OverlayLocalCache,
		tiles:  map[domain.TileCoordinate][]byte{coord: body},
	}
	router := newTestRouter(&mockJobService{}, ov)

	w := do(t, router, http.MethodGet, "/tiles/3/4/2.png", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "local_cache", w.Header().Get("X-Tile-Source"))
	assert.Equal(t, body, w.Body.Bytes())

	w = do(t, router, http.MethodGet, "/tiles/3/4/3.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/tiles/3/x/3.png", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ov.err = fmt.Errorf("%w: request 3/4/2: refused", errpkg.ErrNetwork)
	w = do(t, router, http.MethodGet, "/tiles/3/4/2.png", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(&mockJobService{}, &mockOverlay{})

	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
