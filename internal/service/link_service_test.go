package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebox/internal/domain"
)

func TestCreateFileLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	t.Run("defaults to unlimited", func(t *testing.T) {
		link := f.fileLink(t, file.ID, domain.FileLinkOptions{})
		assert.Len(t, link.Secret, 10)
		assert.Nil(t, link.MaxDownloads)
		assert.Zero(t, link.Downloads)
		assert.False(t, link.Child())
	})

	t.Run("multiple direct links are independent", func(t *testing.T) {
		a := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(1)})
		b := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(1)})
		assert.NotEqual(t, a.Secret, b.Secret)
	})

	t.Run("rejects non-positive max downloads", func(t *testing.T) {
		_, err := f.links.CreateFileLink(ctx, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(0)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects expiry in the past", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		_, err := f.links.CreateFileLink(ctx, file.ID, domain.FileLinkOptions{ExpiresAt: domain.Some(past)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := f.links.CreateFileLink(ctx, uuid.New(), domain.FileLinkOptions{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCreateFileLink_SecretCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	f.store.FailNextCreates(maxSecretAttempts - 1)
	link, err := f.links.CreateFileLink(ctx, file.ID, domain.FileLinkOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, link.Secret)

	f.store.FailNextCreates(maxSecretAttempts)
	_, err = f.links.CreateFileLink(ctx, file.ID, domain.FileLinkOptions{})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestModifyFileLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	t.Run("overwrites only provided fields", func(t *testing.T) {
		link := f.fileLink(t, file.ID, domain.FileLinkOptions{
			MaxDownloads: domain.Some(5),
			Notes:        domain.Some("for bob"),
		})

		updated, err := f.links.ModifyFileLink(ctx, file.ID, link.Secret, domain.FileLinkOptions{
			MaxDownloads: domain.Some(7),
		})
		require.NoError(t, err)
		assert.Equal(t, 7, *updated.MaxDownloads)
		require.NotNil(t, updated.Notes)
		assert.Equal(t, "for bob", *updated.Notes)
	})

	t.Run("null resets quota to unlimited", func(t *testing.T) {
		link := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(5)})

		updated, err := f.links.ModifyFileLink(ctx, file.ID, link.Secret, domain.FileLinkOptions{
			MaxDownloads: domain.Null[int](),
		})
		require.NoError(t, err)
		assert.Nil(t, updated.MaxDownloads)
		assert.True(t, updated.Remaining().IsUnlimited())
	})

	t.Run("quota not above served downloads is a conflict", func(t *testing.T) {
		link := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(3)})
		_, err := f.accountant.RecordSuccessfulDownload(ctx, link.ID)
		require.NoError(t, err)

		_, err = f.links.ModifyFileLink(ctx, file.ID, link.Secret, domain.FileLinkOptions{
			MaxDownloads: domain.Some(1),
		})
		assert.ErrorIs(t, err, domain.ErrConflict)

		stored, ok := f.store.FileLink(link.ID)
		require.True(t, ok)
		assert.Equal(t, 3, *stored.MaxDownloads)
	})

	t.Run("unknown secret", func(t *testing.T) {
		_, err := f.links.ModifyFileLink(ctx, file.ID, "0000000000", domain.FileLinkOptions{
			Notes: domain.Some("x"),
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("child expiry follows the space link", func(t *testing.T) {
		spaceLink, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
		require.NoError(t, err)
		children, err := f.store.Stores().Links.ListChildFileLinks(ctx, spaceLink.ID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		child := children[0]

		_, err = f.links.ModifyFileLink(ctx, file.ID, child.Secret, domain.FileLinkOptions{
			ExpiresAt: domain.Some(time.Now().Add(time.Hour)),
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		updated, err := f.links.ModifyFileLink(ctx, file.ID, child.Secret, domain.FileLinkOptions{
			MaxDownloads: domain.Some(2),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, *updated.MaxDownloads)
	})
}

func TestModifyFileLink_ExpiredStaysExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	start := time.Now()
	expiresAt := start.Add(time.Hour)
	link := f.fileLink(t, file.ID, domain.FileLinkOptions{ExpiresAt: domain.Some(expiresAt)})
	f.setNow(start.Add(2 * time.Hour))

	for name, opts := range map[string]domain.FileLinkOptions{
		"null expiry":   {ExpiresAt: domain.Null[time.Time]()},
		"future expiry": {ExpiresAt: domain.Some(start.Add(24 * time.Hour))},
		"notes only":    {Notes: domain.Some("late")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.links.ModifyFileLink(ctx, file.ID, link.Secret, opts)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}

	stored, ok := f.store.FileLink(link.ID)
	require.True(t, ok)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, expiresAt.Equal(*stored.ExpiresAt))
	assert.Nil(t, stored.Notes)

	err := f.shares.DownloadFile(ctx, FileAccessRequest{FileID: file.ID, Secret: link.Secret}, discard())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveFileLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	link := f.fileLink(t, file.ID, domain.FileLinkOptions{})
	require.NoError(t, f.links.RemoveFileLink(ctx, file.ID, link.Secret))

	_, ok := f.store.FileLink(link.ID)
	assert.False(t, ok)

	// Повторное удаление не ошибка
	assert.NoError(t, f.links.RemoveFileLink(ctx, file.ID, link.Secret))

	spaceLink, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
	require.NoError(t, err)
	children, err := f.store.Stores().Links.ListChildFileLinks(ctx, spaceLink.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	err = f.links.RemoveFileLink(ctx, file.ID, children[0].Secret)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, ok = f.store.FileLink(children[0].ID)
	assert.True(t, ok)
}

func TestListFileLinks_ExcludesChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	direct := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(4)})
	_, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
	require.NoError(t, err)

	links, err := f.links.ListFileLinks(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, direct.Secret, links[0].Secret)
	assert.Equal(t, testBaseURL+"/shares/file/"+direct.Secret, links[0].URL)
	assert.Equal(t, domain.Limited(4), links[0].MaxDownloads)
	assert.Equal(t, domain.Limited(4), links[0].RemainingDownloads)
}

func TestCreateSpaceLink_CreatesChildPerFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	files := map[uuid.UUID]bool{}
	for _, name := range []string{"A", "B", "C"} {
		files[f.upload(t, space.ID, name, name).ID] = true
	}

	expiresAt := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	link, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{
		ExpiresAt: domain.Some(expiresAt),
	})
	require.NoError(t, err)

	children, err := f.store.Stores().Links.ListChildFileLinks(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for _, child := range children {
		assert.True(t, files[child.FileID])
		assert.Nil(t, child.MaxDownloads)
		require.NotNil(t, child.ExpiresAt)
		assert.True(t, expiresAt.Equal(*child.ExpiresAt))
		require.NotNil(t, child.Notes)
		assert.Equal(t, domain.ChildLinkNotes, *child.Notes)
		assert.Equal(t, link.ID, *child.ParentSpaceLinkID)
	}

	// Файл, добавленный после создания ссылки, дочернюю ссылку не получает
	late := f.upload(t, space.ID, "D", "D")
	links, err := f.store.Stores().Links.ListFileLinks(ctx, late.ID, true)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestCreateSpaceLink_FailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	f.upload(t, space.ID, "A", "A")

	// Каждая попытка падает на вставке дочерней ссылки
	f.store.FailNextCreates(maxSecretAttempts)
	_, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
	require.ErrorIs(t, err, domain.ErrConflict)

	assert.Zero(t, f.store.SpaceLinkCount())
	assert.Zero(t, f.store.FileLinkCount())
}

func TestModifySpaceLink_CascadesExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	a := f.upload(t, space.ID, "A", "A")
	f.upload(t, space.ID, "B", "B")

	link, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
	require.NoError(t, err)

	children, err := f.store.Stores().Links.ListChildFileLinks(ctx, link.ID)
	require.NoError(t, err)
	for _, child := range children {
		if child.FileID == a.ID {
			_, err := f.links.ModifyFileLink(ctx, a.ID, child.Secret, domain.FileLinkOptions{MaxDownloads: domain.Some(3)})
			require.NoError(t, err)
		}
	}

	expiresAt := time.Now().Add(48 * time.Hour)
	updated, err := f.links.ModifySpaceLink(ctx, space.ID, link.Secret, domain.SpaceLinkOptions{
		ExpiresAt: domain.Some(expiresAt),
		Notes:     domain.Some("team"),
	})
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(*updated.ExpiresAt))

	children, err = f.store.Stores().Links.ListChildFileLinks(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, child := range children {
		require.NotNil(t, child.ExpiresAt)
		assert.True(t, expiresAt.Equal(*child.ExpiresAt))
		if child.FileID == a.ID {
			require.NotNil(t, child.MaxDownloads)
			assert.Equal(t, 3, *child.MaxDownloads)
		} else {
			assert.Nil(t, child.MaxDownloads)
		}
	}

	t.Run("notes only keeps child expiry", func(t *testing.T) {
		_, err := f.links.ModifySpaceLink(ctx, space.ID, link.Secret, domain.SpaceLinkOptions{
			Notes: domain.Some("again"),
		})
		require.NoError(t, err)
		children, err := f.store.Stores().Links.ListChildFileLinks(ctx, link.ID)
		require.NoError(t, err)
		for _, child := range children {
			assert.True(t, expiresAt.Equal(*child.ExpiresAt))
		}
	})
}

func TestModifySpaceLink_ExpiredStaysExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "hello")

	start := time.Now()
	expiresAt := start.Add(time.Hour)
	link, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{ExpiresAt: domain.Some(expiresAt)})
	require.NoError(t, err)
	f.setNow(start.Add(2 * time.Hour))

	_, err = f.links.ModifySpaceLink(ctx, space.ID, link.Secret, domain.SpaceLinkOptions{
		ExpiresAt: domain.Null[time.Time](),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.links.ModifySpaceLink(ctx, space.ID, link.Secret, domain.SpaceLinkOptions{
		ExpiresAt: domain.Some(start.Add(24 * time.Hour)),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	children, err := f.store.Stores().Links.ListChildFileLinks(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.NotNil(t, children[0].ExpiresAt)
	assert.True(t, expiresAt.Equal(*children[0].ExpiresAt), "child expiry untouched")

	_, err = f.shares.SpaceAccess(ctx, SpaceAccessRequest{SpaceID: space.ID, Secret: link.Secret})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = f.shares.DownloadFile(ctx, FileAccessRequest{FileID: file.ID, Secret: children[0].Secret}, discard())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveSpaceLink_RemovesChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "A", "A")
	f.upload(t, space.ID, "B", "B")
	direct := f.fileLink(t, file.ID, domain.FileLinkOptions{})

	link, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, f.store.FileLinkCount())

	require.NoError(t, f.links.RemoveSpaceLink(ctx, space.ID, link.Secret))
	assert.Zero(t, f.store.SpaceLinkCount())
	assert.Equal(t, 1, f.store.FileLinkCount())
	_, ok := f.store.FileLink(direct.ID)
	assert.True(t, ok)

	assert.NoError(t, f.links.RemoveSpaceLink(ctx, space.ID, link.Secret))
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "A", "A")

	now := time.Now()
	f.setNow(now)
	f.fileLink(t, file.ID, domain.FileLinkOptions{ExpiresAt: domain.Some(now.Add(time.Hour))})
	keep := f.fileLink(t, file.ID, domain.FileLinkOptions{})
	_, err := f.links.CreateSpaceLink(ctx, space.ID, domain.SpaceLinkOptions{
		ExpiresAt: domain.Some(now.Add(time.Hour)),
	})
	require.NoError(t, err)

	f.setNow(now.Add(2 * time.Hour))
	cleanup := NewCleanupService(f.links, time.Minute)
	require.NoError(t, cleanup.AutoCleanup(ctx))

	assert.Zero(t, f.store.SpaceLinkCount())
	assert.Equal(t, 1, f.store.FileLinkCount())
	_, ok := f.store.FileLink(keep.ID)
	assert.True(t, ok)
}
