// Package model defines the job document and the engine registry that the
// coordinator and worker share.
package model

import (
	"time"

	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusUploading, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Well-known output names. Engines may add others (thumbnails, word timings, …).
const (
	OutputVideo    = "video"
	OutputAudio    = "audio"
	OutputMetadata = "metadata"
	OutputVTT      = "vtt"
	OutputWords    = "words"
	OutputComments = "comments"
)

// OutputRef points at one produced artifact. URL is populated lazily with a
// presigned link only when the document is read or dispatched.
type OutputRef struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// JobDocument is the authoritative per-job status record. One logical Job
// State Actor instance owns the document for its job id; every mutation is a
// read-modify-write against the current stored copy.
type JobDocument struct {
	JobID        string               `json:"jobId"`
	MediaID      string               `json:"mediaId,omitempty"`
	Title        string               `json:"title,omitempty"`
	Engine       Engine               `json:"engine,omitempty"`
	Status       Status               `json:"status"`
	Phase        string               `json:"phase,omitempty"`
	Progress     float64              `json:"progress"`
	Error        string               `json:"error,omitempty"`
	Outputs      map[string]OutputRef `json:"outputs,omitempty"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
	NextNotified bool                 `json:"nextNotified"`
	TS           time.Time            `json:"ts"`
}

// Clone returns a deep copy of the document.
func (d *JobDocument) Clone() *JobDocument {
	if d == nil {
		return nil
	}
	out := *d
	if d.Outputs != nil {
		out.Outputs = make(map[string]OutputRef, len(d.Outputs))
		for name, ref := range d.Outputs {
			out.Outputs[name] = ref
		}
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// OutputKey returns the stored key for a named output, or "".
func (d *JobDocument) OutputKey(name string) string {
	if d.Outputs == nil {
		return ""
	}
	return d.Outputs[name].Key
}

// SetOutput records an output key, preserving any other outputs.
func (d *JobDocument) SetOutput(name, key string) {
	if d.Outputs == nil {
		d.Outputs = make(map[string]OutputRef, 1)
	}
	d.Outputs[name] = OutputRef{Key: key}
}

// ProgressUpdate is the body of the progress webhook. Optional fields use
// pointers so a merge can distinguish "absent" from zero values; absent fields
// leave the stored document untouched.
type ProgressUpdate struct {
	JobID             string               `json:"jobId"`
	Status            *Status              `json:"status,omitempty"`
	Phase             *string              `json:"phase,omitempty"`
	Progress          *float64             `json:"progress,omitempty"`
	Error             *string              `json:"error,omitempty"`
	OutputKey         *string              `json:"outputKey,omitempty"`
	OutputAudioKey    *string              `json:"outputAudioKey,omitempty"`
	OutputMetadataKey *string              `json:"outputMetadataKey,omitempty"`
	Outputs           map[string]OutputRef `json:"outputs,omitempty"`
	Metadata          map[string]any       `json:"metadata,omitempty"`
	TS                int64                `json:"ts,omitempty"`
	Nonce             string               `json:"nonce,omitempty"`
}

// Validate checks the update for fields the actor cannot merge.
func (u *ProgressUpdate) Validate() error {
	if u.JobID == "" {
		return apperrors.Validation("jobId is required")
	}
	if u.Status != nil && !u.Status.Valid() {
		return apperrors.Validationf("unknown status %q", *u.Status)
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 1) {
		return apperrors.Validationf("progress %v out of range [0,1]", *u.Progress)
	}
	return nil
}

// Apply merges the update over the document field by field. Fields absent from
// the update are preserved; metadata and outputs merge key-wise rather than
// replacing the stored maps. Completion normalizes the document: phase is
// cleared and progress forced to 1.
func (d *JobDocument) Apply(u *ProgressUpdate, now time.Time) {
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.Phase != nil {
		d.Phase = *u.Phase
	}
	if u.Progress != nil {
		d.Progress = *u.Progress
	}
	if u.Error != nil {
		d.Error = *u.Error
	}
	if u.OutputKey != nil && *u.OutputKey != "" {
		d.SetOutput(OutputVideo, *u.OutputKey)
	}
	if u.OutputAudioKey != nil && *u.OutputAudioKey != "" {
		d.SetOutput(OutputAudio, *u.OutputAudioKey)
	}
	if u.OutputMetadataKey != nil && *u.OutputMetadataKey != "" {
		d.SetOutput(OutputMetadata, *u.OutputMetadataKey)
	}
	for name, ref := range u.Outputs {
		if ref.Key != "" {
			d.SetOutput(name, ref.Key)
		}
	}
	if len(u.Metadata) > 0 {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			d.Metadata[k] = v
		}
	}
	if d.Status == StatusCompleted {
		d.Phase = ""
		d.Progress = 1
	}
	d.TS = now
}
