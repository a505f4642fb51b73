package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/domain/model"
	apperrors "github.com/medialoom/coordinator/internal/errors"
)

func TestArtifactReadFull(t *testing.T) {
	router, store := newTestRouter(t)
	store.put("videos/m1.mp4", "0123456789")

	rec := do(router, httptest.NewRequest(http.MethodGet, "/api/artifacts/videos/m1.mp4", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
}

func TestArtifactReadRange(t *testing.T) {
	router, store := newTestRouter(t)
	store.put("videos/m1.mp4", "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts/videos/m1.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := do(router, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
}

func TestArtifactReadSuffixRange(t *testing.T) {
	router, store := newTestRouter(t)
	store.put("k", "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts/k", nil)
	req.Header.Set("Range", "bytes=-3")
	rec := do(router, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "789", rec.Body.String())
	assert.Equal(t, "bytes 7-9/10", rec.Header().Get("Content-Range"))
}

func TestArtifactReadRangeUnsatisfiable(t *testing.T) {
	router, store := newTestRouter(t)
	store.put("k", "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts/k", nil)
	req.Header.Set("Range", "bytes=50-60")
	rec := do(router, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Contains(t, rec.Body.String(), "range_not_satisfiable")
}

func TestArtifactReadMissing(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, httptest.NewRequest(http.MethodGet, "/api/artifacts/videos/absent.mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts/videos/absent.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	assert.Equal(t, http.StatusNotFound, do(router, req).Code)
}

func TestArtifactReadStorageFailure(t *testing.T) {
	router, store := newTestRouter(t)
	store.readErr = apperrors.TransientIO("remote get", errors.New("connection reset"))

	rec := do(router, httptest.NewRequest(http.MethodGet, "/api/artifacts/k", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "storage_read_failed", body["error"])
	assert.Equal(t, float64(http.StatusBadGateway), body["status"])
	assert.Contains(t, body["message"], "connection reset")
}

func TestArtifactReadStorageFailureReportsUpstreamStatus(t *testing.T) {
	router, store := newTestRouter(t)
	store.readErr = apperrors.TransientIOStatus("remote get", http.StatusServiceUnavailable, errors.New("slow down"))

	rec := do(router, httptest.NewRequest(http.MethodGet, "/api/artifacts/k", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "storage_read_failed", body["error"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), body["status"])
}

func TestDeleteArtifactsForJob(t *testing.T) {
	router, store := newTestRouter(t)

	rec := do(router, signedRequest(t, http.MethodPost, "/api/jobs", core.InitRequest{
		JobID:   "j1",
		MediaID: "m1",
		Engine:  model.EngineMediaDownloader,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	store.put("videos/m1.mp4", "v")
	store.put("audio/m1.m4a", "a")

	rec = do(router, httptest.NewRequest(http.MethodDelete, "/api/jobs/j1/artifacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK      bool              `json:"ok"`
		Deleted []string          `json:"deleted"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, []string{"audio/m1.m4a", "metadata/m1.json", "videos/m1.mp4"}, resp.Deleted)
	assert.Empty(t, resp.Errors)

	_, ok, err := store.Exists(context.Background(), "videos/m1.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteArtifactsPartialFailure(t *testing.T) {
	router, store := newTestRouter(t)

	rec := do(router, signedRequest(t, http.MethodPost, "/api/jobs", core.InitRequest{
		JobID:   "j1",
		MediaID: "m1",
		Engine:  model.EngineMediaDownloader,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	store.put("videos/m1.mp4", "v")
	store.deleteErrs["videos/m1.mp4"] = errors.New("remote unavailable")

	rec = do(router, httptest.NewRequest(http.MethodDelete, "/api/jobs/j1/artifacts", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		OK      bool              `json:"ok"`
		Deleted []string          `json:"deleted"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	// The failure did not stop the other keys from being deleted.
	assert.Equal(t, []string{"audio/m1.m4a", "metadata/m1.json"}, resp.Deleted)
	assert.Contains(t, resp.Errors["videos/m1.mp4"], "remote unavailable")
}

func TestDeleteArtifactsUnknownJob(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(router, httptest.NewRequest(http.MethodDelete, "/api/jobs/ghost/artifacts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
