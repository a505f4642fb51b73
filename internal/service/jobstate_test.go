package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/data"
	"github.com/medialoom/coordinator/internal/domain/model"
	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// stubStore is an in-memory core.ObjectStore for service tests.
type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ core.ObjectStore = (*stubStore)(nil)

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) put(key, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = []byte(body)
}

func (s *stubStore) ReadFull(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (s *stubStore) ReadRange(_ context.Context, key string, offset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, apperrors.NotFoundf("object %q not found", key)
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

func (s *stubStore) ReadRangeFromHeader(_ context.Context, key, _ string) (*core.RangeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, apperrors.NotFoundf("object %q not found", key)
	}
	return &core.RangeResult{Data: data, Start: 0, End: int64(len(data)) - 1, Size: int64(len(data))}, nil
}

func (s *stubStore) WriteStream(_ context.Context, key, _ string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *stubStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *stubStore) Exists(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return int64(len(data)), ok, nil
}

func (s *stubStore) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *stubStore) PresignedGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (s *stubStore) PresignedPut(_ context.Context, key string, _ time.Duration, _ string) (string, error) {
	return "https://signed.example.com/put/" + key, nil
}

// countingDispatcher records every dispatched document.
type countingDispatcher struct {
	mu   sync.Mutex
	docs []*model.JobDocument
}

func (d *countingDispatcher) DispatchCompletion(_ context.Context, doc *model.JobDocument) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs = append(d.docs, doc)
}

func (d *countingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.docs)
}

func newTestService(t *testing.T) (*JobStateService, *data.MemoryJobRepo, *stubStore, *countingDispatcher) {
	t.Helper()
	repo := data.NewMemoryJobRepo()
	store := newStubStore()
	dispatcher := &countingDispatcher{}
	svc, err := NewJobStateService(JobStateOptions{
		Repo:       repo,
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return svc, repo, store, dispatcher
}

func terminal(s model.Status) *model.Status { return &s }

func TestInitDefaultsToQueued(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Init(ctx, &core.InitRequest{
		JobID:   "j1",
		MediaID: "m1",
		Engine:  model.EngineMediaDownloader,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, doc.Status)

	stored, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "m1", stored.MediaID)
}

func TestInitRecordsOutputKeys(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	doc, err := svc.Init(context.Background(), &core.InitRequest{
		JobID:          "j1",
		OutputKey:      "videos/m1.mp4",
		OutputAudioKey: "audio/m1.m4a",
	})
	require.NoError(t, err)
	assert.Equal(t, "videos/m1.mp4", doc.OutputKey(model.OutputVideo))
	assert.Equal(t, "audio/m1.m4a", doc.OutputKey(model.OutputAudio))
}

func TestInitValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, nil)
	assert.True(t, apperrors.IsValidation(err))
	_, err = svc.Init(ctx, &core.InitRequest{})
	assert.True(t, apperrors.IsValidation(err))
	_, err = svc.Init(ctx, &core.InitRequest{JobID: "j1", Status: "nonsense"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestProgressUnknownJob(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Progress(context.Background(), &model.ProgressUpdate{JobID: "ghost"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProgressMergesAndPersists(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{
		JobID:    "j1",
		Engine:   model.EngineMediaDownloader,
		Metadata: map[string]any{"source": "upload"},
	})
	require.NoError(t, err)

	phase := "downloading"
	progress := 0.4
	_, err = svc.Progress(ctx, &model.ProgressUpdate{
		JobID:    "j1",
		Status:   terminal(model.StatusRunning),
		Phase:    &phase,
		Progress: &progress,
		Metadata: map[string]any{"duration": 120},
	})
	require.NoError(t, err)

	stored, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, stored.Status)
	assert.Equal(t, "downloading", stored.Phase)
	assert.Equal(t, "upload", stored.Metadata["source"])
	assert.Equal(t, 120, stored.Metadata["duration"])
}

func TestCompletionNotifiesExactlyOnce(t *testing.T) {
	svc, _, store, dispatcher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1", MediaID: "m1", Engine: model.EngineMediaDownloader})
	require.NoError(t, err)
	store.put("videos/m1.mp4", "bytes")

	upd := &model.ProgressUpdate{
		JobID:     "j1",
		Status:    terminal(model.StatusCompleted),
		OutputKey: func() *string { k := "videos/m1.mp4"; return &k }(),
	}
	_, err = svc.Progress(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatcher.count())

	// A duplicate terminal POST merges but never notifies again.
	_, err = svc.Progress(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatcher.count())

	// Nor does a later read.
	_, err = svc.Query(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, dispatcher.count())
}

func TestFailureNotifiesWithoutArtifacts(t *testing.T) {
	svc, _, _, dispatcher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1", Engine: model.EngineMediaDownloader})
	require.NoError(t, err)

	errMsg := "fetch failed"
	_, err = svc.Progress(ctx, &model.ProgressUpdate{
		JobID:  "j1",
		Status: terminal(model.StatusFailed),
		Error:  &errMsg,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dispatcher.count())
	assert.Equal(t, model.StatusFailed, dispatcher.docs[0].Status)
	assert.Equal(t, "fetch failed", dispatcher.docs[0].Error)
}

func TestCompletedWithoutArtifactHoldsNotification(t *testing.T) {
	svc, repo, _, dispatcher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1", MediaID: "m1", Engine: model.EngineMediaDownloader})
	require.NoError(t, err)

	key := "videos/m1.mp4"
	_, err = svc.Progress(ctx, &model.ProgressUpdate{
		JobID:     "j1",
		Status:    terminal(model.StatusCompleted),
		OutputKey: &key,
	})
	require.NoError(t, err)

	// The status sticks but the consumer is not told yet.
	assert.Equal(t, 0, dispatcher.count())
	stored, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.False(t, stored.NextNotified)
}

func TestQuerySynthesizesCompletion(t *testing.T) {
	svc, repo, store, dispatcher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1", MediaID: "m1", Engine: model.EngineMediaDownloader})
	require.NoError(t, err)

	phase := "uploading"
	progress := 0.95
	_, err = svc.Progress(ctx, &model.ProgressUpdate{
		JobID:    "j1",
		Status:   terminal(model.StatusUploading),
		Phase:    &phase,
		Progress: &progress,
	})
	require.NoError(t, err)

	// Final upload landed but the last progress POST was lost.
	store.put("videos/m1.mp4", "video bytes")
	store.put("audio/m1.m4a", "audio bytes")

	doc, err := svc.Query(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.Empty(t, doc.Phase)
	assert.Equal(t, float64(1), doc.Progress)
	assert.Equal(t, "videos/m1.mp4", doc.OutputKey(model.OutputVideo))
	assert.Equal(t, "audio/m1.m4a", doc.OutputKey(model.OutputAudio))
	assert.Equal(t, 1, dispatcher.count())

	// The promotion is persisted, so a second query does not redo the work.
	stored, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.True(t, stored.NextNotified)

	_, err = svc.Query(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, dispatcher.count())
}

func TestQueryDoesNotSynthesizeWithoutArtifact(t *testing.T) {
	svc, _, _, dispatcher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1", MediaID: "m1", Engine: model.EngineMediaDownloader})
	require.NoError(t, err)

	doc, err := svc.Query(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, doc.Status)
	assert.Equal(t, 0, dispatcher.count())
}

func TestQueryDowngradesIncompleteTranscription(t *testing.T) {
	svc, repo, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1", MediaID: "m1", Engine: model.EngineASRPipeline})
	require.NoError(t, err)

	progress := 0.8
	key := "vtt/m1.vtt"
	_, err = svc.Progress(ctx, &model.ProgressUpdate{
		JobID:    "j1",
		Status:   terminal(model.StatusCompleted),
		Progress: &progress,
		Outputs:  map[string]model.OutputRef{model.OutputVTT: {Key: key}},
	})
	require.NoError(t, err)

	// The transcript has not been written yet: reads report running.
	doc, err := svc.Query(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, doc.Status)
	assert.InDelta(t, 1.0, doc.Progress, 0.0001)

	// The downgrade is presentation only; the stored status is untouched.
	stored, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)

	// Once the transcript exists the document reads as completed.
	store.put(key, "WEBVTT")
	doc, err = svc.Query(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.Equal(t, float64(1), doc.Progress)
}

// vanishingRepo drops the document right after handing it out, so the locked
// re-read during completion synthesis misses.
type vanishingRepo struct {
	*data.MemoryJobRepo
}

func (r *vanishingRepo) Get(ctx context.Context, jobID string) (*model.JobDocument, error) {
	doc, err := r.MemoryJobRepo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	_ = r.MemoryJobRepo.Delete(ctx, jobID)
	return doc, nil
}

func TestQueryDeletedWhileProbing(t *testing.T) {
	repo := &vanishingRepo{MemoryJobRepo: data.NewMemoryJobRepo()}
	store := newStubStore()
	svc, err := NewJobStateService(JobStateOptions{
		Repo:       repo,
		Store:      store,
		Dispatcher: &countingDispatcher{},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.MemoryJobRepo.Save(ctx, &model.JobDocument{
		JobID:   "j1",
		MediaID: "m1",
		Engine:  model.EngineMediaDownloader,
		Status:  model.StatusUploading,
	}))
	store.put("videos/m1.mp4", "bytes")

	doc, err := svc.Query(ctx, "j1")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Nil(t, doc)
}

func TestQueryUnknownJob(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Query(context.Background(), "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Init(ctx, &core.InitRequest{JobID: "j1"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "j1"))
	require.NoError(t, svc.Delete(ctx, "j1"))
	require.NoError(t, svc.Delete(ctx, ""))

	_, err = svc.Query(ctx, "j1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestExpectedKeysForMergesRecordedAndConventional(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	doc := &model.JobDocument{
		JobID:   "j1",
		MediaID: "m1",
		Engine:  model.EngineMediaDownloader,
	}
	doc.SetOutput(model.OutputVideo, "videos/custom.mp4")

	keys := svc.ExpectedKeysFor(doc)
	assert.Contains(t, keys, "videos/custom.mp4")
	assert.Contains(t, keys, "videos/m1.mp4")
	assert.Contains(t, keys, "audio/m1.m4a")
	assert.Contains(t, keys, "metadata/m1.json")

	// Recorded and conventional keys that coincide are listed once.
	seen := make(map[string]int)
	for _, k := range keys {
		seen[k]++
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "key %q listed %d times", k, n)
	}
}
