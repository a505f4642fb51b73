// Package ytdlp adapts the yt-dlp binary into the worker's fetch capability
// for the media downloader engine. The scraping logic itself lives in the
// binary; this adapter only stages its outputs.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/medialoom/coordinator/internal/domain/model"
	"github.com/medialoom/coordinator/internal/worker"
)

// Downloader shells out to yt-dlp.
type Downloader struct {
	binaryPath string
	tempDir    string
}

// New creates a downloader. An empty binaryPath assumes yt-dlp on PATH.
func New(binaryPath, tempDir string) *Downloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Downloader{binaryPath: binaryPath, tempDir: tempDir}
}

// Fetch implements worker.FetchFunc: metadata, best muxed video, and an m4a
// audio track staged under a per-job temp directory.
func (d *Downloader) Fetch(ctx context.Context, job worker.Job, report func(float64)) (*worker.FetchResult, error) {
	if job.SourceURL == "" {
		return nil, fmt.Errorf("job %s has no source url", job.ID)
	}
	stageDir, err := os.MkdirTemp(d.tempDir, "job-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	id := job.MediaID
	if id == "" {
		id = job.ID
	}
	videoPath := filepath.Join(stageDir, id+".mp4")
	audioPath := filepath.Join(stageDir, id+".m4a")
	metaPath := filepath.Join(stageDir, id+".info.json")

	report(0)
	if err = d.run(ctx, job.ProxyURL,
		"--no-warnings", "--write-info-json", "-f", "b", "-o", videoPath,
		"--no-clean-info-json", job.SourceURL); err != nil {
		return nil, err
	}
	report(0.7)

	if err = d.run(ctx, job.ProxyURL,
		"--no-warnings", "-f", "ba[ext=m4a]/ba", "-x", "--audio-format", "m4a",
		"-o", audioPath, job.SourceURL); err != nil {
		return nil, err
	}
	report(1)

	artifacts := []worker.Artifact{
		{Name: model.OutputVideo, Key: "videos/" + id + ".mp4", ContentType: "video/mp4", Path: videoPath},
		{Name: model.OutputAudio, Key: "audio/" + id + ".m4a", ContentType: "audio/mp4", Path: audioPath},
	}
	// yt-dlp derives the info-json name from the output template.
	if _, statErr := os.Stat(metaPath); statErr == nil {
		artifacts = append(artifacts, worker.Artifact{
			Name:        model.OutputMetadata,
			Key:         "metadata/" + id + ".json",
			ContentType: "application/json",
			Path:        metaPath,
		})
	}

	return &worker.FetchResult{
		Artifacts: artifacts,
		Metadata:  map[string]any{"source_url": job.SourceURL},
	}, nil
}

func (d *Downloader) run(ctx context.Context, proxyURL string, args ...string) error {
	if proxyURL != "" {
		args = append([]string{"--proxy", proxyURL}, args...)
	}
	cmd := exec.CommandContext(ctx, d.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}
