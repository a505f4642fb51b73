package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/domain/model"
	"github.com/medialoom/coordinator/internal/observability/metrics"
	"github.com/medialoom/coordinator/internal/observability/statsd"
	"github.com/medialoom/coordinator/internal/signing"
)

const defaultCallbackTimeout = 10 * time.Second

// CompletionPayload is the body of the completion webhook. The engine field
// discriminates the shape: the media downloader promotes its primary artifact
// to outputKey/outputUrl for consumers that predate the outputs map.
type CompletionPayload struct {
	JobID     string                     `json:"jobId"`
	MediaID   string                     `json:"mediaId,omitempty"`
	Engine    model.Engine               `json:"engine"`
	Status    model.Status               `json:"status"`
	OutputKey string                     `json:"outputKey,omitempty"`
	OutputURL string                     `json:"outputUrl,omitempty"`
	Outputs   map[string]model.OutputRef `json:"outputs,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Metadata  map[string]any             `json:"metadata,omitempty"`
}

// CallbackOptions groups dependencies for CallbackDispatcher.
type CallbackOptions struct {
	ConsumerURL string           // Required: consumer webhook endpoint
	Secret      []byte           // Required: shared signing secret
	Store       core.ObjectStore // Required: presigns output URLs at send time
	PresignTTL  time.Duration    // Optional: output URL lifetime, default 1h
	Client      *http.Client     // Optional: HTTP client override
	Logger      *slog.Logger     // Optional: structured logger
	Metrics     statsd.Sink      // Optional: metric sink
}

// CallbackDispatcher delivers the one-shot completion webhook to the
// consumer. Delivery failures are logged and counted but never retried and
// never propagated: the notify-once guard must not be rolled back by a flaky
// consumer (deliberate at-most-once tradeoff).
type CallbackDispatcher struct {
	url        string
	secret     []byte
	store      core.ObjectStore
	presignTTL time.Duration
	client     *http.Client
	logger     *slog.Logger
	metrics    statsd.Sink
}

var _ core.CompletionDispatcher = (*CallbackDispatcher)(nil)

// NewCallbackDispatcher constructs a CallbackDispatcher.
func NewCallbackDispatcher(opts CallbackOptions) (*CallbackDispatcher, error) {
	if opts.ConsumerURL == "" {
		return nil, errors.New("consumer callback URL is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}

	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultCallbackTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackDispatcher{
		url:        opts.ConsumerURL,
		secret:     opts.Secret,
		store:      opts.Store,
		presignTTL: ttl,
		client:     client,
		logger:     logger.With("component", "callback_dispatcher"),
		metrics:    opts.Metrics,
	}, nil
}

// DispatchCompletion builds the engine-shaped payload, signs it, and posts it
// to the consumer.
func (d *CallbackDispatcher) DispatchCompletion(ctx context.Context, doc *model.JobDocument) {
	payload := d.buildPayload(ctx, doc)
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("encode completion payload", "job_id", doc.JobID, "error", err)
		metrics.RecordDeliveryFailure(d.metrics, string(doc.Engine))
		return
	}

	if err = d.post(ctx, body); err != nil {
		d.logger.Error("completion webhook delivery failed",
			"job_id", doc.JobID, "engine", doc.Engine, "error", err)
		metrics.RecordDeliveryFailure(d.metrics, string(doc.Engine))
		return
	}
	d.logger.Info("completion webhook delivered", "job_id", doc.JobID, "status", doc.Status)
}

func (d *CallbackDispatcher) buildPayload(ctx context.Context, doc *model.JobDocument) CompletionPayload {
	payload := CompletionPayload{
		JobID:    doc.JobID,
		MediaID:  doc.MediaID,
		Engine:   doc.Engine,
		Status:   doc.Status,
		Error:    doc.Error,
		Metadata: doc.Metadata,
	}

	if len(doc.Outputs) > 0 {
		payload.Outputs = make(map[string]model.OutputRef, len(doc.Outputs))
		for name, ref := range doc.Outputs {
			resolved := ref
			if url, err := d.store.PresignedGet(ctx, ref.Key, d.presignTTL); err == nil {
				resolved.URL = url
			} else {
				d.logger.Warn("presign output failed", "job_id", doc.JobID, "key", ref.Key, "error", err)
			}
			payload.Outputs[name] = resolved
		}
	}

	spec, _ := model.LookupEngine(doc.Engine)
	if spec.PrimaryOutput != "" {
		if primary, ok := payload.Outputs[spec.PrimaryOutput]; ok {
			payload.OutputKey = primary.Key
			payload.OutputURL = primary.URL
		}
	}
	return payload
}

func (d *CallbackDispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.Header, signing.Sign(d.secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New("consumer responded " + resp.Status)
	}
	return nil
}
