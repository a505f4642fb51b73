package model

import (
	"context"
	"fmt"
)

// Engine identifies which capability produced a job's artifacts. The set is
// closed; payload shape and completeness rules dispatch on it through the
// registry below rather than ad hoc branching.
type Engine string

const (
	EngineMediaDownloader    Engine = "media-downloader"
	EngineASRPipeline        Engine = "asr-pipeline"
	EngineCommentsDownloader Engine = "comments-downloader"
)

// ProbeFunc answers whether a storage key currently holds an object.
type ProbeFunc func(ctx context.Context, key string) bool

// EngineSpec describes one engine variant: which output is the primary
// artifact, which keys a finished job is expected to have produced, and when
// a "completed" status is trustworthy enough to notify the consumer.
type EngineSpec struct {
	// PrimaryOutput is the artifact whose presence gates completion.
	PrimaryOutput string

	// ExpectedKeys derives the storage keys a finished job should have
	// produced, from the document's id fields. Used by the query-time probe
	// that compensates for a lost final progress POST.
	ExpectedKeys func(doc *JobDocument) map[string]string

	// Complete reports whether the engine-specific completeness condition
	// holds: the primary output key is recorded on the document and the
	// object actually exists in storage.
	Complete func(ctx context.Context, doc *JobDocument, probe ProbeFunc) bool
}

func primaryComplete(name string) func(context.Context, *JobDocument, ProbeFunc) bool {
	return func(ctx context.Context, doc *JobDocument, probe ProbeFunc) bool {
		key := doc.OutputKey(name)
		if key == "" {
			return false
		}
		if probe == nil {
			return true
		}
		return probe(ctx, key)
	}
}

func mediaID(doc *JobDocument) string {
	if doc.MediaID != "" {
		return doc.MediaID
	}
	return doc.JobID
}

var engineRegistry = map[Engine]EngineSpec{
	EngineMediaDownloader: {
		PrimaryOutput: OutputVideo,
		ExpectedKeys: func(doc *JobDocument) map[string]string {
			id := mediaID(doc)
			return map[string]string{
				OutputVideo:    fmt.Sprintf("videos/%s.mp4", id),
				OutputAudio:    fmt.Sprintf("audio/%s.m4a", id),
				OutputMetadata: fmt.Sprintf("metadata/%s.json", id),
			}
		},
		Complete: primaryComplete(OutputVideo),
	},
	EngineASRPipeline: {
		PrimaryOutput: OutputVTT,
		ExpectedKeys: func(doc *JobDocument) map[string]string {
			id := mediaID(doc)
			return map[string]string{
				OutputVTT:   fmt.Sprintf("vtt/%s.vtt", id),
				OutputWords: fmt.Sprintf("words/%s.json", id),
			}
		},
		Complete: primaryComplete(OutputVTT),
	},
	EngineCommentsDownloader: {
		PrimaryOutput: OutputComments,
		ExpectedKeys: func(doc *JobDocument) map[string]string {
			return map[string]string{
				OutputComments: fmt.Sprintf("comments/%s.json", mediaID(doc)),
			}
		},
		Complete: primaryComplete(OutputComments),
	},
}

// LookupEngine returns the spec for an engine and whether it is registered.
// Unknown engines get a permissive spec with no completeness requirement, so
// a terminal status from an unrecognized engine still notifies.
func LookupEngine(e Engine) (EngineSpec, bool) {
	spec, ok := engineRegistry[e]
	if ok {
		return spec, true
	}
	return EngineSpec{
		ExpectedKeys: func(*JobDocument) map[string]string { return nil },
		Complete: func(context.Context, *JobDocument, ProbeFunc) bool {
			return true
		},
	}, false
}
