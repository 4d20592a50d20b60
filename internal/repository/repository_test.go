package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sharebox/internal/domain"
)

// setupTestDB поднимает PostgreSQL в контейнере и применяет миграции
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("sharebox_test"),
		postgres.WithUsername("sharebox"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func seed(t *testing.T, s *Store) (*domain.Space, *domain.File) {
	t.Helper()
	ctx := context.Background()

	space := &domain.Space{ID: uuid.New(), Name: "docs", OwnerID: "owner-1"}
	require.NoError(t, s.Stores().Spaces.Create(ctx, space))

	file := &domain.File{
		ID:         uuid.New(),
		Name:       "report.pdf",
		MIMEType:   "application/pdf",
		SizeBytes:  4,
		OwnerID:    space.OwnerID,
		SpaceID:    space.ID,
		StorageRef: space.ID.String() + "/report",
	}
	require.NoError(t, s.Stores().Files.Create(ctx, file))
	return space, file
}

func TestFileLinks_CRUD(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	_, file := seed(t, s)
	links := s.Stores().Links

	limit := 2
	link := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "aaaaaaaaaa", MaxDownloads: &limit}
	require.NoError(t, links.CreateFileLink(ctx, link))
	assert.False(t, link.CreatedAt.IsZero())

	dup := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "aaaaaaaaaa"}
	assert.ErrorIs(t, links.CreateFileLink(ctx, dup), domain.ErrConflict)

	found, err := links.GetFileLink(ctx, file.ID, "aaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, link.ID, found.ID)

	_, err = links.GetFileLink(ctx, uuid.New(), "aaaaaaaaaa")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	notes := "updated"
	found.Notes = &notes
	require.NoError(t, links.UpdateFileLink(ctx, found))

	listed, err := links.ListFileLinks(ctx, file.ID, false)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "updated", *listed[0].Notes)

	require.NoError(t, links.DeleteFileLink(ctx, link.ID))
	assert.ErrorIs(t, links.DeleteFileLink(ctx, link.ID), domain.ErrNotFound)
}

func TestFileLinks_ExpiredIsInactive(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	_, file := seed(t, s)
	links := s.Stores().Links

	past := time.Now().Add(-time.Minute)
	link := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "bbbbbbbbbb", ExpiresAt: &past}
	require.NoError(t, links.CreateFileLink(ctx, link))

	_, err := links.FindActiveFileLink(ctx, file.ID, "bbbbbbbbbb")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// запись остаётся до очистки
	_, err = links.GetFileLink(ctx, file.ID, "bbbbbbbbbb")
	require.NoError(t, err)

	locked, err := links.LockActiveFileLinks(ctx, []uuid.UUID{link.ID})
	require.NoError(t, err)
	assert.Empty(t, locked)

	n, err := links.DeleteExpiredFileLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIncrementDownloads_ConcurrentQuota(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	_, file := seed(t, s)

	limit := 3
	link := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "cccccccccc", MaxDownloads: &limit}
	require.NoError(t, s.Stores().Links.CreateFileLink(ctx, link))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Stores().Links.IncrementDownloads(ctx, link.ID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)

	deleted, err := s.Stores().Links.DeleteIfExhausted(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestWithinTx_RollsBack(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	space, file := seed(t, s)

	spaceLink := &domain.SpaceLink{ID: uuid.New(), SpaceID: space.ID, Secret: "dddddddddd"}
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(st Stores) error {
		if err := st.Links.CreateSpaceLink(ctx, spaceLink); err != nil {
			return err
		}
		child := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "eeeeeeeeee", ParentSpaceLinkID: &spaceLink.ID}
		if err := st.Links.CreateFileLink(ctx, child); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Stores().Links.FindSpaceLinkBySecret(ctx, "dddddddddd")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Stores().Links.FindFileLinkBySecret(ctx, "eeeeeeeeee")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSpaceLinks_ChildExpiryAndCascade(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	space, file := seed(t, s)
	links := s.Stores().Links

	spaceLink := &domain.SpaceLink{ID: uuid.New(), SpaceID: space.ID, Secret: "ffffffffff"}
	require.NoError(t, links.CreateSpaceLink(ctx, spaceLink))
	child := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "gggggggggg", ParentSpaceLinkID: &spaceLink.ID}
	require.NoError(t, links.CreateFileLink(ctx, child))

	// один дочерний на файл в пределах ссылки пространства
	again := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "hhhhhhhhhh", ParentSpaceLinkID: &spaceLink.ID}
	assert.ErrorIs(t, links.CreateFileLink(ctx, again), domain.ErrConflict)

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	n, err := links.UpdateChildExpiry(ctx, spaceLink.ID, &expiry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	children, err := links.ListChildFileLinks(ctx, spaceLink.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.True(t, expiry.Equal(*children[0].ExpiresAt))

	direct, err := links.ListFileLinks(ctx, file.ID, false)
	require.NoError(t, err)
	assert.Empty(t, direct)

	n, err = links.DeleteFileLinksByParent(ctx, spaceLink.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, links.DeleteSpaceLink(ctx, spaceLink.ID))

	// пространство удаляется только после файлов и ссылок
	require.NoError(t, s.Stores().Files.Delete(ctx, file.ID))
	require.NoError(t, s.Stores().Spaces.Delete(ctx, space.ID))
}

func TestLockActiveFileLinks_LocksOnlyLimited(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	_, file := seed(t, s)
	links := s.Stores().Links

	limit := 3
	limited := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "limited000", MaxDownloads: &limit}
	unlimited := &domain.FileLink{ID: uuid.New(), FileID: file.ID, Secret: "unlimited0"}
	require.NoError(t, links.CreateFileLink(ctx, limited))
	require.NoError(t, links.CreateFileLink(ctx, unlimited))

	tx, err := s.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	active, err := NewLinkRepository(tx).LockActiveFileLinks(ctx, []uuid.UUID{limited.ID, unlimited.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Less(t, active[0].ID.String(), active[1].ID.String())

	// Вторая транзакция не ждёт: безлимитная строка свободна, строка с лимитом занята
	lockRow := func(id uuid.UUID) error {
		var got uuid.UUID
		return s.db.GetContext(ctx, &got, `SELECT id FROM file_links WHERE id = $1 FOR UPDATE NOWAIT`, id)
	}

	assert.NoError(t, lockRow(unlimited.ID))

	err = lockRow(limited.ID)
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr), "expected lock conflict, got %v", err)
	assert.Equal(t, pq.ErrorCode("55P03"), pqErr.Code)
}
