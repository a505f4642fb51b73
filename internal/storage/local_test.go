package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/medialoom/coordinator/internal/errors"
)

func newTestLocal(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalStoreRequiresBaseDir(t *testing.T) {
	_, err := NewLocalStore("")
	assert.True(t, apperrors.IsValidation(err))
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	store := newTestLocal(t)
	require.NoError(t, store.Write("videos/m1.mp4", strings.NewReader("payload")))

	data, err := store.ReadFull("videos/m1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	size, ok, err := store.Exists("videos/m1.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), size)
}

func TestLocalReadFullMissingIsNilNil(t *testing.T) {
	store := newTestLocal(t)
	data, err := store.ReadFull("videos/absent.mp4")
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestLocalReadRange(t *testing.T) {
	store := newTestLocal(t)
	require.NoError(t, store.Write("k", strings.NewReader("0123456789")))

	data, err := store.ReadRange("k", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))

	// A window past the end is truncated, not an error.
	data, err = store.ReadRange("k", 8, 10)
	require.NoError(t, err)
	assert.Equal(t, "89", string(data))
}

func TestLocalReadRangeMissing(t *testing.T) {
	store := newTestLocal(t)
	_, err := store.ReadRange("absent", 0, 1)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalDeleteIdempotent(t *testing.T) {
	store := newTestLocal(t)
	require.NoError(t, store.Write("k", strings.NewReader("x")))
	require.NoError(t, store.Delete("k"))
	require.NoError(t, store.Delete("k"))

	_, ok, err := store.Exists("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalKeyTraversalRejected(t *testing.T) {
	store := newTestLocal(t)
	for _, key := range []string{"../escape", "..", "/etc/passwd", "a/../../b"} {
		_, err := store.ReadFull(key)
		assert.True(t, apperrors.IsValidation(err), "key %q", key)
	}
}

func TestLocalListByPrefix(t *testing.T) {
	store := newTestLocal(t)
	require.NoError(t, store.Write("videos/m1.mp4", strings.NewReader("a")))
	require.NoError(t, store.Write("videos/m2.mp4", strings.NewReader("b")))
	require.NoError(t, store.Write("audio/m1.m4a", strings.NewReader("c")))

	keys, err := store.ListByPrefix("videos/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"videos/m1.mp4", "videos/m2.mp4"}, keys)

	keys, err = store.ListByPrefix("missing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
