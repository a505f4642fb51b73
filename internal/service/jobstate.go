// Package service implements the coordinator's business logic: the per-job
// state actor and the completion callback dispatcher.
package service

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/domain/model"
	apperrors "github.com/medialoom/coordinator/internal/errors"
	"github.com/medialoom/coordinator/internal/observability/metrics"
	"github.com/medialoom/coordinator/internal/observability/statsd"
)

const lockStripes = 64

// JobStateOptions groups dependencies for JobStateService.
type JobStateOptions struct {
	Repo       core.JobRepository        // Required: job document repository
	Store      core.ObjectStore          // Required: artifact storage gateway
	Dispatcher core.CompletionDispatcher // Required: completion webhook dispatcher
	Logger     *slog.Logger              // Optional: structured logger
	Metrics    statsd.Sink               // Optional: metric sink
}

// JobStateService is the Job State Actor: one logical owner per job id for
// the authoritative job document. Routing a single writer stream per job id
// is the caller's concern; the service still serializes its own
// read-modify-write per id with striped locks so near-simultaneous progress
// POSTs never race a merge.
type JobStateService struct {
	repo       core.JobRepository
	store      core.ObjectStore
	dispatcher core.CompletionDispatcher
	logger     *slog.Logger
	metrics    statsd.Sink

	locks  [lockStripes]sync.Mutex
	probes singleflight.Group
}

// NewJobStateService constructs a JobStateService.
func NewJobStateService(opts JobStateOptions) (*JobStateService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("CompletionDispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStateService{
		repo:       opts.Repo,
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		logger:     logger.With("component", "job_state"),
		metrics:    opts.Metrics,
	}, nil
}

func (s *JobStateService) lock(jobID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Init creates the job document, replacing any existing document for the id.
// A second init is idempotent by overwrite.
func (s *JobStateService) Init(ctx context.Context, req *core.InitRequest) (*model.JobDocument, error) {
	if req == nil || req.JobID == "" {
		return nil, apperrors.Validation("jobId is required")
	}
	status := req.Status
	if status == "" {
		status = model.StatusQueued
	}
	if !status.Valid() {
		return nil, apperrors.Validationf("unknown status %q", status)
	}

	doc := &model.JobDocument{
		JobID:    req.JobID,
		MediaID:  req.MediaID,
		Title:    req.Title,
		Engine:   req.Engine,
		Status:   status,
		Metadata: req.Metadata,
		TS:       time.Now().UTC(),
	}
	if req.OutputKey != "" {
		doc.SetOutput(model.OutputVideo, req.OutputKey)
	}
	if req.OutputAudioKey != "" {
		doc.SetOutput(model.OutputAudio, req.OutputAudioKey)
	}
	if req.OutputMetadataKey != "" {
		doc.SetOutput(model.OutputMetadata, req.OutputMetadataKey)
	}

	mu := s.lock(req.JobID)
	mu.Lock()
	defer mu.Unlock()
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, apperrors.Wrap("save job document", err)
	}
	return doc, nil
}

// Progress merges an update over the current document field by field and
// evaluates the terminal-notify predicate. The document for an unknown job id
// is a NotFound error.
func (s *JobStateService) Progress(ctx context.Context, upd *model.ProgressUpdate) (*model.JobDocument, error) {
	if upd == nil {
		return nil, apperrors.Validation("empty progress update")
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	mu := s.lock(upd.JobID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := s.repo.Get(ctx, upd.JobID)
	if err != nil {
		return nil, err
	}

	doc.Apply(upd, time.Now().UTC())
	s.maybeNotify(ctx, doc)

	if err = s.repo.Save(ctx, doc); err != nil {
		return nil, apperrors.Wrap("save job document", err)
	}
	metrics.RecordProgressApplied(s.metrics, string(doc.Engine), time.Since(started))
	return doc, nil
}

// maybeNotify fires the completion webhook when the terminal-notify predicate
// holds: terminal status, not yet notified, and for completed jobs the
// engine-specific completeness condition. Some engines report an intermediate
// "completed" for a sub-stage (container done, model call pending); the
// completeness probe keeps those from notifying the consumer early. The
// notified flag is set after dispatch and never rolled back, so notification
// fires at most once per job document.
func (s *JobStateService) maybeNotify(ctx context.Context, doc *model.JobDocument) {
	if !doc.Status.IsTerminal() || doc.NextNotified {
		return
	}
	if doc.Status == model.StatusCompleted {
		spec, _ := model.LookupEngine(doc.Engine)
		if !spec.Complete(ctx, doc, s.probeExists) {
			s.logger.Debug("completed status without required artifact, holding notification",
				"job_id", doc.JobID, "engine", doc.Engine)
			return
		}
	}

	s.dispatcher.DispatchCompletion(ctx, doc.Clone())
	doc.NextNotified = true
	metrics.RecordNotified(s.metrics, string(doc.Engine))
	s.logger.Info("completion dispatched",
		"job_id", doc.JobID, "engine", doc.Engine, "status", doc.Status)
}

func (s *JobStateService) probeExists(ctx context.Context, key string) bool {
	result, err, _ := s.probes.Do("exists:"+key, func() (any, error) {
		_, ok, statErr := s.store.Exists(ctx, key)
		if statErr != nil {
			return false, statErr
		}
		return ok, nil
	})
	if err != nil {
		s.logger.Warn("storage probe failed", "key", key, "error", err)
		return false
	}
	return result.(bool)
}

// Query returns the current document for presentation. A not-yet-completed
// document triggers a storage probe for the engine's expected output keys; a
// present primary artifact synthesizes completion, compensating for a worker
// whose final upload landed but whose last progress POST was lost. Completed
// documents always present progress 1 and no phase.
func (s *JobStateService) Query(ctx context.Context, jobID string) (*model.JobDocument, error) {
	if jobID == "" {
		return nil, apperrors.Validation("jobId is required")
	}

	doc, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if doc.Status != model.StatusCompleted {
		doc, err = s.synthesizeIfUploaded(ctx, doc)
		if err != nil {
			return nil, err
		}
	}
	return s.present(ctx, doc), nil
}

// synthesizeIfUploaded probes storage for the engine's expected keys and
// promotes the document to completed when the primary artifact is there.
func (s *JobStateService) synthesizeIfUploaded(ctx context.Context, doc *model.JobDocument) (*model.JobDocument, error) {
	spec, known := model.LookupEngine(doc.Engine)
	if !known || spec.PrimaryOutput == "" {
		return doc, nil
	}

	expected := spec.ExpectedKeys(doc)
	primaryKey := doc.OutputKey(spec.PrimaryOutput)
	if primaryKey == "" {
		primaryKey = expected[spec.PrimaryOutput]
	}
	if primaryKey == "" || !s.probeExists(ctx, primaryKey) {
		return doc, nil
	}

	mu := s.lock(doc.JobID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock; a progress POST may have landed meanwhile.
	// Deleted while probing is a plain not-found; deletion is terminal.
	current, err := s.repo.Get(ctx, doc.JobID)
	if err != nil {
		return nil, err
	}
	if current.Status == model.StatusCompleted {
		return current, nil
	}

	current.Status = model.StatusCompleted
	current.Phase = ""
	current.Progress = 1
	current.SetOutput(spec.PrimaryOutput, primaryKey)
	for name, key := range expected {
		if name == spec.PrimaryOutput || current.OutputKey(name) != "" {
			continue
		}
		if s.probeExists(ctx, key) {
			current.SetOutput(name, key)
		}
	}
	current.TS = time.Now().UTC()

	s.maybeNotify(ctx, current)
	if err = s.repo.Save(ctx, current); err != nil {
		return nil, apperrors.Wrap("save synthesized completion", err)
	}
	metrics.RecordSynthesizedCompletion(s.metrics, string(current.Engine))
	s.logger.Info("synthesized completion from storage probe", "job_id", current.JobID)
	return current, nil
}

// present applies the read-side rules without mutating stored state: a
// completed document never shows a stale phase or sub-100% progress, and an
// ASR document claiming completed without its transcript artifact is reported
// as still running. The downgrade papers over the gap between "container
// finished" and "transcript written"; a cleaner model would carry two
// sub-statuses, which is why the rule lives in this one function.
func (s *JobStateService) present(ctx context.Context, doc *model.JobDocument) *model.JobDocument {
	out := doc.Clone()
	if out.Status != model.StatusCompleted {
		return out
	}
	out.Phase = ""
	out.Progress = 1

	if out.Engine == model.EngineASRPipeline {
		spec, _ := model.LookupEngine(out.Engine)
		if !spec.Complete(ctx, out, s.probeExists) {
			out.Status = model.StatusRunning
			out.Progress = doc.Progress
		}
	}
	return out
}

// Delete clears the stored document. Idempotent; deleting an unknown id is a
// no-op.
func (s *JobStateService) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	mu := s.lock(jobID)
	mu.Lock()
	defer mu.Unlock()
	if err := s.repo.Delete(ctx, jobID); err != nil {
		return apperrors.Wrap("delete job document", err)
	}
	return nil
}

// ExpectedKeysFor lists every storage key the coordinator can attribute to a
// job: recorded outputs first, then the engine's path conventions. Used by
// the best-effort artifact delete endpoint.
func (s *JobStateService) ExpectedKeysFor(doc *model.JobDocument) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(key string) {
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	for _, ref := range doc.Outputs {
		add(ref.Key)
	}
	spec, _ := model.LookupEngine(doc.Engine)
	for _, key := range spec.ExpectedKeys(doc) {
		add(key)
	}
	return keys
}
