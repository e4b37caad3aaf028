package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func TestLibrary_PerformChangesAndWait(t *testing.T) {
	ctx := context.Background()
	lib := openTestLibrary(t)
	data := []byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}

	err := lib.PerformChangesAndWait(ctx, func(r *ChangeRequest) {
		r.CreationRequestForAsset().AddResource(ResourceTypePhoto, data)
	})
	require.NoError(t, err)

	assets, err := lib.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, ResourceTypePhoto, assets[0].Type)
	assert.Equal(t, int64(len(data)), assets[0].SizeBytes)
	assert.Equal(t, assets[0].ID+".jpg", assets[0].Filename)

	path, err := lib.AssetPath(ctx, assets[0].ID)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = lib.AssetPath(ctx, "missing")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestLibrary_EmptyChange(t *testing.T) {
	ctx := context.Background()
	lib := openTestLibrary(t)

	err := lib.PerformChangesAndWait(ctx, func(*ChangeRequest) {})
	assert.ErrorIs(t, err, ErrEmptyChange)

	// 空のリソースを含む場合は何も保存しない
	err = lib.PerformChangesAndWait(ctx, func(r *ChangeRequest) {
		r.CreationRequestForAsset().AddResource(ResourceTypePhoto, []byte{1})
		r.CreationRequestForAsset().AddResource(ResourceTypePhoto, nil)
	})
	assert.ErrorIs(t, err, ErrEmptyChange)

	assets, err := lib.Assets(ctx)
	require.NoError(t, err)
	assert.Empty(t, assets)

	entries, err := os.ReadDir(filepath.Join(lib.dir, "assets"))
	require.NoError(t, err)
	assert.Empty(t, entries, "ロールバック時は書き込んだファイルも削除する")
}

func TestLibrary_PerformChangesAsync(t *testing.T) {
	ctx := context.Background()
	lib := openTestLibrary(t)

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	lib.PerformChanges(ctx, func(r *ChangeRequest) {
		r.CreationRequestForAsset().AddResource(ResourceTypePhoto, []byte("jpeg"))
	}, func(ok bool, err error) {
		done <- result{ok, err}
	})

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.ok)

	assets, err := lib.Assets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestLibrary_ClosedRejectsChanges(t *testing.T) {
	lib, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, lib.Close())

	var called bool
	lib.PerformChanges(context.Background(), func(r *ChangeRequest) {
		r.CreationRequestForAsset().AddResource(ResourceTypePhoto, []byte("x"))
	}, func(ok bool, err error) {
		called = true
		assert.False(t, ok)
		assert.Error(t, err)
	})
	assert.True(t, called)
}

func TestLibrary_ReopenKeepsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	lib, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, lib.PerformChangesAndWait(ctx, func(r *ChangeRequest) {
		r.CreationRequestForAsset().AddResource(ResourceTypePhoto, []byte("a"))
	}))
	require.NoError(t, lib.Close())

	lib, err = Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = lib.Close() }()

	assets, err := lib.Assets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}
