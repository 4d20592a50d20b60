package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebox/internal/domain"
)

func TestRecordSuccessfulDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")
	link := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(1)})

	res, err := f.accountant.RecordSuccessfulDownload(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloads)
	assert.True(t, res.Retired)

	_, err = f.accountant.RecordSuccessfulDownload(ctx, link.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordSuccessfulDownloads_SkipsRetired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")
	limited := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(2)})
	unlimited := f.fileLink(t, file.ID, domain.FileLinkOptions{})

	counted, err := f.accountant.RecordSuccessfulDownloads(ctx, []uuid.UUID{limited.ID, unlimited.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 2, counted)

	stored, ok := f.store.FileLink(limited.ID)
	require.True(t, ok)
	assert.Equal(t, 1, stored.Downloads)
}

func TestServeLinks_OnlyLocksActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")
	link := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(1)})

	var seen []domain.FileLink
	counted, err := f.accountant.ServeLinks(ctx, "file", []uuid.UUID{link.ID, uuid.New()},
		func(ctx context.Context, active []domain.FileLink) error {
			seen = active
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, counted)
	require.Len(t, seen, 1)
	assert.Equal(t, link.ID, seen[0].ID)

	counted, err = f.accountant.ServeLinks(ctx, "file", []uuid.UUID{link.ID},
		func(ctx context.Context, active []domain.FileLink) error {
			assert.Empty(t, active)
			return nil
		})
	require.NoError(t, err)
	assert.Zero(t, counted)
}

func TestServeLinks_CountsUnlimitedAfterServe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space(t, "docs")
	file := f.upload(t, space.ID, "a.txt", "a")
	limited := f.fileLink(t, file.ID, domain.FileLinkOptions{MaxDownloads: domain.Some(3)})
	unlimited := f.fileLink(t, file.ID, domain.FileLinkOptions{})
	ids := []uuid.UUID{limited.ID, unlimited.ID}

	_, err := f.accountant.ServeLinks(ctx, "space", ids,
		func(ctx context.Context, active []domain.FileLink) error {
			require.Len(t, active, 2)
			return errors.New("client went away")
		})
	require.Error(t, err)

	stored, ok := f.store.FileLink(unlimited.ID)
	require.True(t, ok)
	assert.Zero(t, stored.Downloads, "failed serve counts nothing")

	counted, err := f.accountant.ServeLinks(ctx, "space", ids,
		func(ctx context.Context, active []domain.FileLink) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, counted)

	for _, id := range ids {
		stored, ok := f.store.FileLink(id)
		require.True(t, ok)
		assert.Equal(t, 1, stored.Downloads)
	}
}
