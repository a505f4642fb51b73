package storage

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/medialoom/coordinator/internal/core"
	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// Gateway implements core.ObjectStore over an optional local binding and the
// remote store. Reads, deletes, exists and lists probe local first; a local
// failure or miss falls through to the remote path. Writes go remote only:
// the local binding may be invisible to out-of-process workers, so a local
// write would split the system of record.
type Gateway struct {
	local  *LocalStore
	remote *RemoteStore
	logger *slog.Logger
}

var _ core.ObjectStore = (*Gateway)(nil)

// GatewayOptions group the gateway dependencies. Local is optional.
type GatewayOptions struct {
	Local  *LocalStore
	Remote *RemoteStore
	Logger *slog.Logger
}

// NewGateway constructs the gateway. The remote store is required.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.Remote == nil {
		return nil, apperrors.Configuration("remote object store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{local: opts.Local, remote: opts.Remote, logger: logger}, nil
}

// ReadFull returns the whole object, or (nil, nil) when absent on both paths.
func (g *Gateway) ReadFull(ctx context.Context, key string) ([]byte, error) {
	if g.local != nil {
		data, err := g.local.ReadFull(key)
		if err == nil && data != nil {
			return data, nil
		}
		if err != nil {
			g.logger.Debug("local read failed, falling back", "key", key, "error", err)
		}
	}
	return g.remote.ReadFull(ctx, key)
}

// ReadRange returns length bytes starting at offset.
func (g *Gateway) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if g.local != nil {
		if _, ok, err := g.local.Exists(key); err == nil && ok {
			data, rangeErr := g.local.ReadRange(key, offset, length)
			if rangeErr == nil {
				return data, nil
			}
			g.logger.Debug("local range read failed, falling back", "key", key, "error", rangeErr)
		}
	}
	return g.remote.ReadRange(ctx, key, offset, length)
}

// ReadRangeFromHeader resolves an HTTP Range header against the object size
// and returns the satisfied inclusive window.
func (g *Gateway) ReadRangeFromHeader(ctx context.Context, key, rangeHeader string) (*core.RangeResult, error) {
	size, ok, err := g.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFoundf("object %q not found", key)
	}

	start, end, err := resolveRange(rangeHeader, size)
	if err != nil {
		return nil, err
	}

	data, err := g.ReadRange(ctx, key, start, end-start+1)
	if err != nil {
		return nil, err
	}
	return &core.RangeResult{Data: data, Start: start, End: end, Size: size}, nil
}

// WriteStream uploads body under key. Remote only; see the type comment.
func (g *Gateway) WriteStream(ctx context.Context, key, contentType string, body io.Reader) error {
	return g.remote.Write(ctx, key, contentType, body)
}

// Delete removes the object from both paths. The delete succeeds if the
// remote path succeeds regardless of the local outcome.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if g.local != nil {
		if err := g.local.Delete(key); err != nil {
			g.logger.Debug("local delete failed", "key", key, "error", err)
		}
	}
	return g.remote.Delete(ctx, key)
}

// Exists returns the object size and presence, local first.
func (g *Gateway) Exists(ctx context.Context, key string) (int64, bool, error) {
	if g.local != nil {
		size, ok, err := g.local.Exists(key)
		if err == nil && ok {
			return size, true, nil
		}
		if err != nil {
			g.logger.Debug("local stat failed, falling back", "key", key, "error", err)
		}
	}
	return g.remote.Exists(ctx, key)
}

// ListByPrefix returns keys under prefix, preferring the local listing and
// merging in remote keys the local binding has not seen.
func (g *Gateway) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	remoteKeys, err := g.remote.ListByPrefix(ctx, prefix)
	if err != nil {
		if g.local == nil {
			return nil, err
		}
		g.logger.Debug("remote list failed, using local only", "prefix", prefix, "error", err)
		return g.local.ListByPrefix(prefix)
	}
	if g.local == nil {
		return remoteKeys, nil
	}

	localKeys, localErr := g.local.ListByPrefix(prefix)
	if localErr != nil {
		return remoteKeys, nil
	}
	seen := make(map[string]struct{}, len(remoteKeys))
	for _, k := range remoteKeys {
		seen[k] = struct{}{}
	}
	merged := remoteKeys
	for _, k := range localKeys {
		if _, dup := seen[k]; !dup {
			merged = append(merged, k)
		}
	}
	return merged, nil
}

// PresignedGet returns a time-limited read URL for key.
func (g *Gateway) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return g.remote.PresignedGet(ctx, key, ttl)
}

// PresignedPut returns a time-limited write URL for key.
func (g *Gateway) PresignedPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	return g.remote.PresignedPut(ctx, key, ttl, contentType)
}

// resolveRange parses a "bytes=a-b" header and resolves it against size:
// a negative-start range ("-N") means the last N bytes, a missing end runs to
// the end of the object, and an end past the object is clamped to size-1.
// A window that is empty after clamping is unsatisfiable.
func resolveRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, 0, apperrors.Validationf("unsupported range header %q", header)
	}
	// Only a single range is supported.
	spec = strings.TrimSpace(strings.SplitN(spec, ",", 2)[0])
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, apperrors.Validationf("malformed range %q", header)
	}

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return 0, 0, apperrors.Validationf("malformed range %q", header)
	case startStr == "":
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, apperrors.Validationf("malformed range %q", header)
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case endStr == "":
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, apperrors.Validationf("malformed range %q", header)
		}
		start = n
		end = size - 1
	default:
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, apperrors.Validationf("malformed range %q", header)
		}
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, apperrors.Validationf("malformed range %q", header)
		}
		start, end = s, e
	}

	if end > size-1 {
		end = size - 1
	}
	if start > end || start < 0 {
		return 0, 0, apperrors.Validationf("range %q not satisfiable for size %d", header, size)
	}
	return start, end, nil
}
