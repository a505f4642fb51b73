// Package data provides job-document repositories.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/domain/model"
	apperrors "github.com/medialoom/coordinator/internal/errors"
)

const defaultJobKeyPrefix = "job:"

// RedisJobRepo stores job documents as JSON values keyed by job id. It is the
// actor's durable copy; documents carry no TTL because deletion is an explicit
// terminal operation.
type RedisJobRepo struct {
	client redis.UniversalClient
	prefix string
}

var _ core.JobRepository = (*RedisJobRepo)(nil)

// NewRedisJobRepo creates a job repository with the default key prefix.
func NewRedisJobRepo(client redis.UniversalClient) *RedisJobRepo {
	return &RedisJobRepo{client: client, prefix: defaultJobKeyPrefix}
}

// NewRedisJobRepoWithPrefix creates a job repository with a custom key prefix.
func NewRedisJobRepoWithPrefix(client redis.UniversalClient, prefix string) *RedisJobRepo {
	return &RedisJobRepo{client: client, prefix: prefix}
}

func (r *RedisJobRepo) key(jobID string) string {
	return r.prefix + jobID
}

// Get returns the stored document or a NotFound error.
func (r *RedisJobRepo) Get(ctx context.Context, jobID string) (*model.JobDocument, error) {
	if jobID == "" {
		return nil, apperrors.NotFound("job id is empty")
	}
	data, err := r.client.Get(ctx, r.key(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFoundf("job %q not found", jobID)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var doc model.JobDocument
	if unmarshalErr := json.Unmarshal([]byte(data), &doc); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal job document: %w", unmarshalErr)
	}
	return &doc, nil
}

// Save persists the document, replacing any stored copy.
func (r *RedisJobRepo) Save(ctx context.Context, doc *model.JobDocument) error {
	if doc == nil || doc.JobID == "" {
		return apperrors.Validation("job document requires a job id")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal job document: %w", err)
	}
	return r.client.Set(ctx, r.key(doc.JobID), data, 0).Err()
}

// Delete removes the document. Deleting a missing id is not an error.
func (r *RedisJobRepo) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	return r.client.Del(ctx, r.key(jobID)).Err()
}
