// Package worker drives phased execution of one media job inside a detached
// worker process. The pipeline is capability-agnostic: it is handed a fetch
// function and an artifact sink and never learns which engine it serves.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/medialoom/coordinator/internal/domain/model"
)

// Phase progress anchors. Fetch sub-progress maps into the download window.
const (
	progressPreparing     = 0.05
	progressMetadata      = 0.10
	progressDownloadStart = 0.40
	progressDownloadEnd   = 0.60
	progressTransformPre  = 0.70
	progressTransformPost = 0.80
	progressUploadStart   = 0.90
	progressUploadEnd     = 0.95
)

// Job identifies the work one pipeline run performs.
type Job struct {
	ID        string
	MediaID   string
	Title     string
	Engine    model.Engine
	SourceURL string
	// ProxyURL is the local tunnel or forward-proxy URL capabilities should
	// route through; empty means direct egress.
	ProxyURL string
}

// Artifact is one produced file staged on local disk, destined for an object
// storage key.
type Artifact struct {
	Name        string // output name: video, audio, metadata, vtt, …
	Key         string // object storage key
	ContentType string
	Path        string // local staging path
}

// FetchResult carries the capability's artifacts and engine metadata.
type FetchResult struct {
	Artifacts []Artifact
	Metadata  map[string]any
}

// FetchFunc runs the injected capability (video download, comments scrape,
// transcription). It reports sub-progress in [0,1] through report.
type FetchFunc func(ctx context.Context, job Job, report func(frac float64)) (*FetchResult, error)

// TransformFunc optionally post-processes fetched artifacts (audio
// extraction, container remux) before upload.
type TransformFunc func(ctx context.Context, job Job, fetched *FetchResult) (*FetchResult, error)

// Sink uploads one artifact.
type Sink interface {
	Upload(ctx context.Context, artifact Artifact) error
}

// Event is one progress observation emitted at phase transitions.
type Event struct {
	JobID    string
	Status   model.Status
	Phase    string
	Progress float64
	Err      error
	Outputs  map[string]model.OutputRef
	Metadata map[string]any
}

// Listener observes pipeline events. Listener panics are swallowed so a
// broken observer never aborts the underlying work.
type Listener func(Event)

// PipelineOptions group dependencies for Pipeline.
type PipelineOptions struct {
	Fetch     FetchFunc     // Required: injected capability
	Transform TransformFunc // Optional: post-fetch transform
	Sink      Sink          // Required: artifact uploader
	Listeners []Listener    // Optional: progress observers
	Logger    *slog.Logger  // Optional
}

// Pipeline executes prepare → fetch → transform → upload for one job.
type Pipeline struct {
	fetch     FetchFunc
	transform TransformFunc
	sink      Sink
	listeners []Listener
	logger    *slog.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Fetch == nil {
		return nil, errors.New("fetch capability is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("artifact sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetch:     opts.Fetch,
		transform: opts.Transform,
		sink:      opts.Sink,
		listeners: opts.Listeners,
		logger:    logger.With("component", "pipeline"),
	}, nil
}

// Run executes the phase machine. The returned error is also reported to
// listeners as a failed event.
func (p *Pipeline) Run(ctx context.Context, job Job) error {
	p.emit(Event{JobID: job.ID, Status: model.StatusRunning, Phase: "preparing", Progress: progressPreparing})
	p.emit(Event{JobID: job.ID, Status: model.StatusRunning, Phase: "fetching_metadata", Progress: progressMetadata})

	result, err := p.fetch(ctx, job, func(frac float64) {
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		p.emit(Event{
			JobID:    job.ID,
			Status:   model.StatusRunning,
			Phase:    "downloading",
			Progress: progressDownloadStart + frac*(progressDownloadEnd-progressDownloadStart),
		})
	})
	if err != nil {
		return p.fail(job, "downloading", err)
	}

	if p.transform != nil {
		p.emit(Event{JobID: job.ID, Status: model.StatusRunning, Phase: "transforming", Progress: progressTransformPre})
		result, err = p.transform(ctx, job, result)
		if err != nil {
			return p.fail(job, "transforming", err)
		}
		p.emit(Event{JobID: job.ID, Status: model.StatusRunning, Phase: "transforming", Progress: progressTransformPost})
	}

	p.emit(Event{JobID: job.ID, Status: model.StatusUploading, Phase: "uploading", Progress: progressUploadStart})
	outputs := make(map[string]model.OutputRef, len(result.Artifacts))
	for _, artifact := range result.Artifacts {
		if err = p.sink.Upload(ctx, artifact); err != nil {
			return p.fail(job, "uploading", err)
		}
		outputs[artifact.Name] = model.OutputRef{Key: artifact.Key}
		if artifact.Path != "" {
			if rmErr := os.Remove(artifact.Path); rmErr != nil {
				p.logger.Debug("staged artifact cleanup failed", "path", artifact.Path, "error", rmErr)
			}
		}
	}
	p.emit(Event{
		JobID:    job.ID,
		Status:   model.StatusUploading,
		Phase:    "uploading",
		Progress: progressUploadEnd,
		Outputs:  outputs,
	})

	p.emit(Event{
		JobID:    job.ID,
		Status:   model.StatusCompleted,
		Progress: 1,
		Outputs:  outputs,
		Metadata: result.Metadata,
	})
	return nil
}

func (p *Pipeline) fail(job Job, phase string, err error) error {
	p.emit(Event{JobID: job.ID, Status: model.StatusFailed, Phase: phase, Err: err})
	return err
}

func (p *Pipeline) emit(event Event) {
	for _, listener := range p.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Warn("progress listener panicked", "job_id", event.JobID, "panic", r)
				}
			}()
			listener(event)
		}()
	}
}
