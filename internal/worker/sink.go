package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/medialoom/coordinator/internal/core"
)

// StorageSink uploads staged artifacts through the object storage gateway.
type StorageSink struct {
	store core.ObjectStore
}

var _ Sink = (*StorageSink)(nil)

// NewStorageSink creates a sink backed by the gateway.
func NewStorageSink(store core.ObjectStore) *StorageSink {
	return &StorageSink{store: store}
}

// Upload streams one staged file to its object key.
func (s *StorageSink) Upload(ctx context.Context, artifact Artifact) error {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open staged artifact %s: %w", artifact.Path, err)
	}
	defer f.Close()

	if err = s.store.WriteStream(ctx, artifact.Key, artifact.ContentType, f); err != nil {
		return fmt.Errorf("upload %s: %w", artifact.Key, err)
	}
	return nil
}
