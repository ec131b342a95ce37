package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/config"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     newMockS3Store(t),
	}
}

func TestStore_PutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.Put(ctx, "datafiles/2024/A1_1.csv", bytes.NewBufferString("a,b\n1,2\n"), PutOptions{ContentType: "text/csv"})
			require.NoError(t, err)
			assert.Equal(t, "datafiles/2024/A1_1.csv", info.Key)
			assert.Equal(t, int64(8), info.Size)

			got, rc, err := store.Get(ctx, info.Key)
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.NoError(t, err)
			assert.Equal(t, "a,b\n1,2\n", string(body))
			assert.Equal(t, "text/csv", got.ContentType)

			_, err = store.Put(ctx, info.Key, bytes.NewBufferString("again"), PutOptions{})
			assert.True(t, errors.Is(err, ErrExists), "keys are write-once: %v", err)

			list, err := store.List(ctx, "datafiles/2024/")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, info.Key, list[0].Key)

			deleted, err := store.Delete(ctx, info.Key)
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.Delete(ctx, info.Key)
			require.NoError(t, err)
			assert.False(t, deleted)

			_, _, err = store.Get(ctx, info.Key)
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		})
	}
}

func TestStore_HeadMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Head(ctx, "docs/missing.pdf")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, bad := range []string{"", "   ", "../escape", "/abs", "a/../b"} {
		_, err := sanitizeKey(bad)
		assert.Error(t, err, bad)
	}
	k, err := sanitizeKey("docs/./item-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "docs/item-1.pdf", k)
}

func TestFilesystemStore_ETagAndPresign(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	info, err := store.Put(ctx, "docs/a.pdf", bytes.NewBufferString("pdf"), PutOptions{Metadata: map[string]string{"item": "NUM-1"}})
	require.NoError(t, err)
	assert.Len(t, info.ETag, 64)

	head, err := store.Head(ctx, "docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, info.ETag, head.ETag)
	assert.Equal(t, "NUM-1", head.Metadata["item"])

	url, err := store.PresignURL(ctx, "docs/a.pdf", SignedURLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "http://local.blob/docs/a.pdf", url)

	_, err = store.PresignURL(ctx, "docs/a.pdf", SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestMemoryStore_PresignUnsupported(t *testing.T) {
	_, err := NewMemory().PresignURL(context.Background(), "k", SignedURLOptions{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestS3Store_Presign(t *testing.T) {
	store := newMockS3Store(t)
	url, err := store.PresignURL(context.Background(), "docs/a.pdf", SignedURLOptions{})
	require.NoError(t, err)
	assert.Contains(t, url, "docs/a.pdf")
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, &config.Config{BlobDriver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, &config.Config{BlobDriver: "", BlobFSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, &config.Config{BlobDriver: "s3"})
	assert.Error(t, err, "bucket is required")

	_, err = Open(ctx, &config.Config{BlobDriver: "ftp"})
	assert.Error(t, err)
}
