package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebox/internal/storage"
)

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "space/file.json", strings.NewReader(`{"a":1}`), 7, "application/json"))

	obj, err := s.Get(ctx, "space/file.json")
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())

	assert.Equal(t, `{"a":1}`, string(data))
	assert.Equal(t, int64(7), obj.ContentLength())
	assert.Contains(t, obj.ContentType(), "application/json")

	require.NoError(t, s.Delete(ctx, "space/file.json"))
	_, err = s.Get(ctx, "space/file.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	// повторное удаление не ошибка
	assert.NoError(t, s.Delete(ctx, "space/file.json"))
}

func TestStore_PutSizeMismatch(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	err = s.Put(ctx, "a/b", strings.NewReader("short"), 10, "")
	require.Error(t, err)

	_, err = s.Get(ctx, "a/b")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	left, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStore_KeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "../../escape", strings.NewReader("x"), 1, ""))
	_, err = os.Stat(filepath.Join(parent, "escape"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "escape"))
	assert.NoError(t, err)

	assert.Error(t, s.Put(ctx, "", strings.NewReader("x"), 1, ""))
	_, err = s.Get(ctx, "/")
	assert.Error(t, err)
}

func TestStore_PutCanceled(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", strings.NewReader("data"), 4, ""), context.Canceled)
}
