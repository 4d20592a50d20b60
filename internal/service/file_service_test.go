package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebox/internal/domain"
)

func TestUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")

	file := f.upload(t, space.ID, "../../etc/notes.txt", "hello")
	assert.Equal(t, "notes.txt", file.Name)
	assert.Equal(t, owner.ID, file.OwnerID)
	assert.Equal(t, space.ID.String()+"/"+file.ID.String(), file.StorageRef)
	assert.True(t, f.blobs.has(file.StorageRef))

	t.Run("only the owner uploads", func(t *testing.T) {
		_, err := f.files.Upload(ctx, stranger, domain.FileUpload{Name: "x", Size: 1, SpaceID: space.ID}, strings.NewReader("x"))
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = f.files.Upload(ctx, nil, domain.FileUpload{Name: "x", Size: 1, SpaceID: space.ID}, strings.NewReader("x"))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("validates input", func(t *testing.T) {
		_, err := f.files.Upload(ctx, owner, domain.FileUpload{Name: " ", SpaceID: space.ID}, strings.NewReader(""))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.files.Upload(ctx, owner, domain.FileUpload{Name: "big", Size: maxFileSize + 1, SpaceID: space.ID}, strings.NewReader(""))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown space", func(t *testing.T) {
		_, err := f.files.Upload(ctx, owner, domain.FileUpload{Name: "x", Size: 1, SpaceID: uuid.New()}, strings.NewReader("x"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGetAndRenameFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")
	f.fileLink(t, file.ID, domain.FileLinkOptions{})

	info, err := f.files.Get(ctx, owner, file.ID)
	require.NoError(t, err)
	assert.False(t, info.Locked)
	assert.Len(t, info.Links, 1)

	renamed, err := f.files.Rename(ctx, owner, file.ID, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", renamed.Name)
	assert.Equal(t, file.StorageRef, renamed.StorageRef)

	_, err = f.files.Rename(ctx, stranger, file.ID, "c.txt")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.files.Get(ctx, admin, file.ID)
	assert.NoError(t, err)
}

func TestDeleteFile_Cascade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")
	other := f.upload(t, space.ID, "b.txt", "b")
	f.fileLink(t, file.ID, domain.FileLinkOptions{})
	_, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, f.store.FileLinkCount())

	require.NoError(t, f.files.Delete(ctx, owner, file.ID))

	_, err = f.store.Stores().Files.GetByID(ctx, file.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, f.blobs.has(file.StorageRef))
	assert.Equal(t, 1, f.store.FileLinkCount(), "only b's child link remains")
	assert.Equal(t, 1, f.store.SpaceLinkCount())
	assert.True(t, f.blobs.has(other.StorageRef))
}

func TestLockUnlockFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")

	assert.ErrorIs(t, f.files.Lock(ctx, owner, file.ID, "one", "two"), domain.ErrInvalidInput)
	assert.ErrorIs(t, f.files.Lock(ctx, owner, file.ID, "", ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, f.files.Unlock(ctx, owner, file.ID, "pw"), domain.ErrConflict)

	require.NoError(t, f.files.Lock(ctx, owner, file.ID, "pw", "pw"))
	assert.ErrorIs(t, f.files.Lock(ctx, owner, file.ID, "pw", "pw"), domain.ErrConflict)

	stored, err := f.store.Stores().Files.GetByID(ctx, file.ID)
	require.NoError(t, err)
	require.True(t, stored.Locked())
	assert.NotEqual(t, "pw", *stored.PasswordHash)

	assert.ErrorIs(t, f.files.Unlock(ctx, owner, file.ID, "nope"), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.files.Unlock(ctx, stranger, file.ID, "pw"), domain.ErrForbidden)
	require.NoError(t, f.files.Unlock(ctx, owner, file.ID, "pw"))

	stored, err = f.store.Stores().Files.GetByID(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked())
}
