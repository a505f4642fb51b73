// Package core defines the interfaces and request types that connect the
// service layer to its storage and delivery adapters.
package core

import (
	"context"
	"io"
	"time"

	"github.com/medialoom/coordinator/internal/domain/model"
)

// JobRepository stores job documents keyed by job id.
type JobRepository interface {
	// Get returns the stored document or a NotFound error.
	Get(ctx context.Context, jobID string) (*model.JobDocument, error)
	// Save persists the document, replacing any stored copy.
	Save(ctx context.Context, doc *model.JobDocument) error
	// Delete removes the document. Deleting a missing id is not an error.
	Delete(ctx context.Context, jobID string) error
}

// RangeResult is one satisfied byte-range read.
type RangeResult struct {
	Data  []byte
	Start int64
	End   int64
	Size  int64
}

// ObjectStore unifies the fast local binding and the presigned-URL remote
// store behind one interface. Reads probe local first and fall back to the
// remote store; writes always go remote so out-of-process workers see them.
type ObjectStore interface {
	// ReadFull returns the whole object, or (nil, nil) when the key is absent.
	ReadFull(ctx context.Context, key string) ([]byte, error)
	// ReadRange returns length bytes starting at offset.
	ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error)
	// ReadRangeFromHeader resolves an HTTP "bytes=a-b" header against the
	// object's size and returns the satisfied window.
	ReadRangeFromHeader(ctx context.Context, key, rangeHeader string) (*RangeResult, error)
	// WriteStream uploads body under key with the given content type.
	WriteStream(ctx context.Context, key, contentType string, body io.Reader) error
	// Delete removes the object from both paths, best effort. It fails only
	// when the remote path fails.
	Delete(ctx context.Context, key string) error
	// Exists returns the object's size and whether it is present.
	Exists(ctx context.Context, key string) (int64, bool, error)
	// ListByPrefix returns the keys under prefix.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	// PresignedGet returns a time-limited read URL for key.
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// PresignedPut returns a time-limited write URL for key.
	PresignedPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error)
}

// CompletionDispatcher delivers the one-shot completion webhook. Delivery is
// best effort: implementations swallow transport failures and surface them
// through logs and metrics only.
type CompletionDispatcher interface {
	DispatchCompletion(ctx context.Context, doc *model.JobDocument)
}

// InitRequest is the body of the job init endpoint.
type InitRequest struct {
	JobID             string         `json:"jobId"`
	MediaID           string         `json:"mediaId,omitempty"`
	Title             string         `json:"title,omitempty"`
	Engine            model.Engine   `json:"engine"`
	Status            model.Status   `json:"status,omitempty"`
	OutputKey         string         `json:"outputKey,omitempty"`
	OutputAudioKey    string         `json:"outputAudioKey,omitempty"`
	OutputMetadataKey string         `json:"outputMetadataKey,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
