package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// RemoteConfig describes the S3-compatible remote object store.
type RemoteConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RemoteStore wraps the S3-compatible store that is always visible to
// out-of-process workers. All presigning happens here.
type RemoteStore struct {
	client *minio.Client
	bucket string
}

// NewRemoteStore connects a remote store client.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, apperrors.Configuration("object store endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.Wrap("connect object store", err)
	}
	return &RemoteStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *RemoteStore) isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
	}
	return false
}

// remoteErr wraps a store failure, carrying the upstream HTTP status when the
// server answered at all.
func remoteErr(op string, err error) *apperrors.AppError {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.StatusCode != 0 {
		return apperrors.TransientIOStatus(op, resp.StatusCode, err)
	}
	return apperrors.TransientIO(op, err)
}

// ReadFull returns the whole object, or (nil, nil) when the key is absent.
func (s *RemoteStore) ReadFull(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, remoteErr("remote get", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if s.isNotFound(err) {
			return nil, nil
		}
		return nil, remoteErr("remote read", err)
	}
	return data, nil
}

// ReadRange returns length bytes starting at offset.
func (s *RemoteStore) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, apperrors.Validationf("invalid range %d+%d: %v", offset, length, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, remoteErr("remote get", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if s.isNotFound(err) {
			return nil, apperrors.NotFoundf("object %q not found", key)
		}
		return nil, remoteErr("remote range read", err)
	}
	return data, nil
}

// Write uploads body under key.
func (s *RemoteStore) Write(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return remoteErr("remote put", err)
	}
	return nil
}

// Delete removes the object. Missing keys are not an error.
func (s *RemoteStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !s.isNotFound(err) {
		return remoteErr("remote delete", err)
	}
	return nil
}

// Exists returns the object size and presence.
func (s *RemoteStore) Exists(ctx context.Context, key string) (int64, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if s.isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, remoteErr("remote stat", err)
	}
	return info.Size, true, nil
}

// ListByPrefix returns every key under prefix.
func (s *RemoteStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, remoteErr("remote list", info.Err)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// PresignedGet returns a time-limited read URL.
func (s *RemoteStore) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", apperrors.TransientIO("presign get", err)
	}
	return u.String(), nil
}

// PresignedPut returns a time-limited write URL bound to a content type.
func (s *RemoteStore) PresignedPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, key, ttl, url.Values{}, headers)
	if err != nil {
		return "", apperrors.TransientIO("presign put", err)
	}
	return u.String(), nil
}
