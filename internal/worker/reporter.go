package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medialoom/coordinator/internal/domain/model"
	"github.com/medialoom/coordinator/internal/signing"
)

const defaultReportTimeout = 10 * time.Second

// ReporterOptions group dependencies for Reporter.
type ReporterOptions struct {
	CoordinatorURL string       // Required: coordinator base URL
	Secret         []byte       // Required: shared signing secret
	Client         *http.Client // Optional
	Logger         *slog.Logger // Optional
}

// Reporter turns pipeline events into signed progress POSTs against the
// coordinator. Delivery failures are logged and dropped: the coordinator's
// query-time storage probe compensates for a lost final POST, and a broken
// reporter must never abort the pipeline.
type Reporter struct {
	baseURL string
	secret  []byte
	client  *http.Client
	logger  *slog.Logger
}

// NewReporter constructs a Reporter.
func NewReporter(opts ReporterOptions) (*Reporter, error) {
	if opts.CoordinatorURL == "" {
		return nil, errors.New("coordinator URL is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultReportTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		baseURL: strings.TrimRight(opts.CoordinatorURL, "/"),
		secret:  opts.Secret,
		client:  client,
		logger:  logger.With("component", "reporter"),
	}, nil
}

// Listen returns a pipeline listener bound to this reporter.
func (r *Reporter) Listen(ctx context.Context) Listener {
	return func(event Event) {
		r.Report(ctx, event)
	}
}

// Report posts one event as a signed progress update.
func (r *Reporter) Report(ctx context.Context, event Event) {
	upd := model.ProgressUpdate{
		JobID:   event.JobID,
		Status:  statusPtr(event.Status),
		Outputs: event.Outputs,
		TS:      time.Now().UnixMilli(),
		Nonce:   uuid.NewString(),
	}
	if event.Phase != "" {
		phase := event.Phase
		upd.Phase = &phase
	}
	if event.Progress > 0 {
		progress := event.Progress
		upd.Progress = &progress
	}
	if event.Err != nil {
		msg := event.Err.Error()
		upd.Error = &msg
	}
	if len(event.Metadata) > 0 {
		upd.Metadata = event.Metadata
	}

	body, err := json.Marshal(&upd)
	if err != nil {
		r.logger.Error("encode progress update", "job_id", event.JobID, "error", err)
		return
	}

	url := r.baseURL + "/api/jobs/" + event.JobID + "/progress"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		r.logger.Error("build progress request", "job_id", event.JobID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.Header, signing.Sign(r.secret, body))

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("progress POST failed", "job_id", event.JobID, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warn("progress POST rejected",
			"job_id", event.JobID, "status", resp.StatusCode, "phase", event.Phase)
	}
}

func statusPtr(s model.Status) *model.Status {
	if s == "" {
		return nil
	}
	return &s
}
