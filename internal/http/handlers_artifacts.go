package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/medialoom/coordinator/internal/core"
	apperrors "github.com/medialoom/coordinator/internal/errors"
	"github.com/medialoom/coordinator/internal/service"
)

const deleteConcurrency = 4

// ArtifactHandlers provides HTTP handlers for artifact reads and deletes.
type ArtifactHandlers struct {
	Store core.ObjectStore
	Svc   *service.JobStateService
}

// Read handles GET /api/artifacts/{key...} with optional Range support.
func (h *ArtifactHandlers) Read(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("object key is required")})
		return
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		h.readRange(w, r, key, rangeHeader)
		return
	}

	data, err := h.Store.ReadFull(r.Context(), key)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if data == nil {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: fmt.Errorf("object %q not found", key)})
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *ArtifactHandlers) readRange(w http.ResponseWriter, r *http.Request, key, rangeHeader string) {
	result, err := h.Store.ReadRangeFromHeader(r.Context(), key, rangeHeader)
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.ErrCodeNotFound:
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
		case apperrors.ErrCodeValidation:
			WriteError(w, ErrorParams{Code: http.StatusRequestedRangeNotSatisfiable, ErrCode: "range_not_satisfiable", Err: err})
		default:
			writeStorageError(w, err)
		}
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range",
		fmt.Sprintf("bytes %d-%d/%d", result.Start, result.End, result.Size))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(result.Data)
}

// writeStorageError reports an upstream storage failure for a reason other
// than not-found. The body's status field is what the store answered, when it
// answered at all.
func writeStorageError(w http.ResponseWriter, err error) {
	upstream := apperrors.StatusOf(err)
	if upstream == 0 {
		upstream = http.StatusBadGateway
	}
	WriteJSON(w, http.StatusBadGateway, map[string]any{
		"error":   "storage_read_failed",
		"status":  upstream,
		"message": err.Error(),
	})
}

// deleteResponse aggregates the per-key outcome of a best-effort delete.
type deleteResponse struct {
	OK      bool              `json:"ok"`
	Deleted []string          `json:"deleted"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// DeleteForJob handles DELETE /api/jobs/{id}/artifacts: remove every key
// known or derivable for the job, never short-circuiting on the first
// failure. 200 only when every key deleted cleanly.
func (h *ArtifactHandlers) DeleteForJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	doc, err := h.Svc.Query(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, "artifact_delete_failed", err)
		return
	}

	keys := h.Svc.ExpectedKeysFor(doc)
	resp := deleteResponse{Deleted: []string{}, Errors: map[string]string{}}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(deleteConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			deleteErr := h.Store.Delete(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if deleteErr != nil {
				resp.Errors[key] = deleteErr.Error()
			} else {
				resp.Deleted = append(resp.Deleted, key)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(resp.Deleted)
	resp.OK = len(resp.Errors) == 0
	code := http.StatusOK
	if !resp.OK {
		code = http.StatusInternalServerError
	}
	WriteJSON(w, code, resp)
}
