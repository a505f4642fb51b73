package data

import (
	"context"
	"sync"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/domain/model"
	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// MemoryJobRepo is an in-process job repository for tests and single-node
// development runs.
type MemoryJobRepo struct {
	mu   sync.RWMutex
	docs map[string]*model.JobDocument
}

var _ core.JobRepository = (*MemoryJobRepo)(nil)

// NewMemoryJobRepo creates an empty in-memory repository.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{docs: make(map[string]*model.JobDocument)}
}

// Get returns a copy of the stored document or a NotFound error.
func (r *MemoryJobRepo) Get(_ context.Context, jobID string) (*model.JobDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("job %q not found", jobID)
	}
	return doc.Clone(), nil
}

// Save stores a copy of the document.
func (r *MemoryJobRepo) Save(_ context.Context, doc *model.JobDocument) error {
	if doc == nil || doc.JobID == "" {
		return apperrors.Validation("job document requires a job id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.JobID] = doc.Clone()
	return nil
}

// Delete removes the document if present.
func (r *MemoryJobRepo) Delete(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, jobID)
	return nil
}
