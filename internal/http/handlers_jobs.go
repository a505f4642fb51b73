package httpx

import (
	"errors"
	"net/http"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/domain/model"
	apperrors "github.com/medialoom/coordinator/internal/errors"
	"github.com/medialoom/coordinator/internal/service"
)

// JobHandlers provides HTTP handlers for job state operations.
type JobHandlers struct {
	Svc *service.JobStateService
}

// Init handles POST /api/jobs: create or overwrite the job document.
func (h *JobHandlers) Init(w http.ResponseWriter, r *http.Request) {
	var req core.InitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	doc, err := h.Svc.Init(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "init_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

// Progress handles POST /api/jobs/{id}/progress: merge a signed worker
// update into the document.
func (h *JobHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	var upd model.ProgressUpdate
	if !DecodeJSON(w, r, &upd) {
		return
	}
	if upd.JobID == "" {
		upd.JobID = jobID
	}
	if upd.JobID != jobID {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "job_id_mismatch",
			Err:     errors.New("body jobId does not match path"),
		})
		return
	}

	if _, err := h.Svc.Progress(r.Context(), &upd); err != nil {
		writeServiceError(w, "progress_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Query handles GET /api/jobs/{id}: return the (possibly synthesized)
// document.
func (h *JobHandlers) Query(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	doc, err := h.Svc.Query(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, "query_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

// Delete handles DELETE /api/jobs/{id}. Always 200 on success, including for
// ids that were never initialized.
func (h *JobHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "delete_failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, errCode string, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeNotFound:
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case apperrors.ErrCodeValidation:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: errCode, Err: err})
	case apperrors.ErrCodeAuthentication:
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: errCode, Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: errCode, Err: err})
	}
}
