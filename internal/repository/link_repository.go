package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sharebox/internal/domain"
)

type LinkRepository struct {
	db Queryer
}

func NewLinkRepository(db Queryer) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) CreateFileLink(ctx context.Context, link *domain.FileLink) error {
	query := `
        INSERT INTO file_links (
            id, file_id, secret, max_downloads, downloads,
            expires_at, parent_space_link_id, notes
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        ) RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		link.ID,
		link.FileID,
		link.Secret,
		link.MaxDownloads,
		link.Downloads,
		link.ExpiresAt,
		link.ParentSpaceLinkID,
		link.Notes,
	).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create file link")
	}
	return nil
}

func (r *LinkRepository) FindFileLinkBySecret(ctx context.Context, secret string) (*domain.FileLink, error) {
	var link domain.FileLink
	if err := r.db.GetContext(ctx, &link, `SELECT * FROM file_links WHERE secret = $1`, secret); err != nil {
		return nil, notFound(err, "file link")
	}
	return &link, nil
}

func (r *LinkRepository) GetFileLink(ctx context.Context, fileID uuid.UUID, secret string) (*domain.FileLink, error) {
	var link domain.FileLink
	query := `SELECT * FROM file_links WHERE file_id = $1 AND secret = $2`
	if err := r.db.GetContext(ctx, &link, query, fileID, secret); err != nil {
		return nil, notFound(err, "file link")
	}
	return &link, nil
}

func (r *LinkRepository) FindActiveFileLink(ctx context.Context, fileID uuid.UUID, secret string) (*domain.FileLink, error) {
	var link domain.FileLink
	query := `
        SELECT * FROM file_links
        WHERE file_id = $1
        AND secret = $2
        AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`

	if err := r.db.GetContext(ctx, &link, query, fileID, secret); err != nil {
		return nil, notFound(err, "file link")
	}
	return &link, nil
}

// ListFileLinks возвращает ссылки файла; дочерние ссылки пространства
// включаются только при includeChildren
func (r *LinkRepository) ListFileLinks(ctx context.Context, fileID uuid.UUID, includeChildren bool) ([]domain.FileLink, error) {
	query := `
        SELECT * FROM file_links
        WHERE file_id = $1
        AND ($2 OR parent_space_link_id IS NULL)
        ORDER BY created_at`

	links := []domain.FileLink{}
	if err := r.db.SelectContext(ctx, &links, query, fileID, includeChildren); err != nil {
		return nil, fmt.Errorf("failed to list file links: %w", err)
	}
	return links, nil
}

func (r *LinkRepository) ListChildFileLinks(ctx context.Context, spaceLinkID uuid.UUID) ([]domain.FileLink, error) {
	links := []domain.FileLink{}
	query := `SELECT * FROM file_links WHERE parent_space_link_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &links, query, spaceLinkID); err != nil {
		return nil, fmt.Errorf("failed to list child file links: %w", err)
	}
	return links, nil
}

// UpdateFileLink перезаписывает изменяемые поля ссылки (лимит, срок, заметки)
func (r *LinkRepository) UpdateFileLink(ctx context.Context, link *domain.FileLink) error {
	query := `
        UPDATE file_links
        SET max_downloads = $1,
            expires_at = $2,
            notes = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $4
        RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query, link.MaxDownloads, link.ExpiresAt, link.Notes, link.ID).
		Scan(&link.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("file link: %w", domain.ErrNotFound)
		}
		return mapWriteError(err, "failed to update file link")
	}
	return nil
}

func (r *LinkRepository) DeleteFileLink(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file link: %w", err)
	}
	return expectAffected(res, "file link")
}

func (r *LinkRepository) DeleteFileLinksByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_links WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file links: %w", err)
	}
	return res.RowsAffected()
}

func (r *LinkRepository) DeleteFileLinksByParent(ctx context.Context, spaceLinkID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_links WHERE parent_space_link_id = $1`, spaceLinkID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete child file links: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFileLinksBySpace удаляет все ссылки (прямые и дочерние) на файлы пространства
func (r *LinkRepository) DeleteFileLinksBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error) {
	query := `
        DELETE FROM file_links
        WHERE file_id IN (SELECT id FROM files WHERE space_id = $1)`

	res, err := r.db.ExecContext(ctx, query, spaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete space file links: %w", err)
	}
	return res.RowsAffected()
}

// UpdateChildExpiry распространяет срок действия ссылки пространства на дочерние ссылки.
// max_downloads не затрагивается.
func (r *LinkRepository) UpdateChildExpiry(ctx context.Context, spaceLinkID uuid.UUID, expiresAt *time.Time) (int64, error) {
	query := `
        UPDATE file_links
        SET expires_at = $1, updated_at = CURRENT_TIMESTAMP
        WHERE parent_space_link_id = $2`

	res, err := r.db.ExecContext(ctx, query, expiresAt, spaceLinkID)
	if err != nil {
		return 0, fmt.Errorf("failed to update child link expiry: %w", err)
	}
	return res.RowsAffected()
}

// IncrementDownloads: одно условное обновление: счётчик растёт только пока
// лимит не исчерпан. Если строки нет или лимит уже достигнут, возвращается ErrNotFound.
func (r *LinkRepository) IncrementDownloads(ctx context.Context, id uuid.UUID) (*domain.FileLink, error) {
	query := `
        UPDATE file_links
        SET downloads = downloads + 1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1
        AND (max_downloads IS NULL OR downloads < max_downloads)
        RETURNING *`

	var link domain.FileLink
	if err := r.db.GetContext(ctx, &link, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file link gone or exhausted: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to increment downloads: %w", err)
	}
	return &link, nil
}

func (r *LinkRepository) DeleteIfExhausted(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
        DELETE FROM file_links
        WHERE id = $1
        AND max_downloads IS NOT NULL
        AND downloads >= max_downloads`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete exhausted link: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// LockActiveFileLinks возвращает активные ссылки из ids в порядке id.
// Строки с лимитом блокируются до конца транзакции: параллельная транзакция
// ждёт, а затем не находит удалённую или исчерпанную ссылку. Безлимитные
// ссылки читаются без блокировки, их счётчик обновляется после передачи.
func (r *LinkRepository) LockActiveFileLinks(ctx context.Context, ids []uuid.UUID) ([]domain.FileLink, error) {
	links := []domain.FileLink{}
	if len(ids) == 0 {
		return links, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	limitedQuery := `
        SELECT * FROM file_links
        WHERE id = ANY($1::uuid[])
        AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
        AND max_downloads IS NOT NULL
        AND downloads < max_downloads
        ORDER BY id
        FOR UPDATE`

	if err := r.db.SelectContext(ctx, &links, limitedQuery, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("failed to lock file links: %w", err)
	}

	unlimitedQuery := `
        SELECT * FROM file_links
        WHERE id = ANY($1::uuid[])
        AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
        AND max_downloads IS NULL`

	var unlimited []domain.FileLink
	if err := r.db.SelectContext(ctx, &unlimited, unlimitedQuery, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("failed to get unlimited file links: %w", err)
	}

	links = append(links, unlimited...)
	slices.SortFunc(links, func(a, b domain.FileLink) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return links, nil
}

// DeleteExpiredFileLinks удаляет истёкшие ссылки и дочерние ссылки истёкших ссылок пространств
func (r *LinkRepository) DeleteExpiredFileLinks(ctx context.Context) (int64, error) {
	query := `
        DELETE FROM file_links
        WHERE expires_at <= CURRENT_TIMESTAMP
        OR parent_space_link_id IN (
            SELECT id FROM space_links WHERE expires_at <= CURRENT_TIMESTAMP
        )`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired file links: %w", err)
	}
	return res.RowsAffected()
}

func (r *LinkRepository) CreateSpaceLink(ctx context.Context, link *domain.SpaceLink) error {
	query := `
        INSERT INTO space_links (id, space_id, secret, expires_at, notes)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query, link.ID, link.SpaceID, link.Secret, link.ExpiresAt, link.Notes).
		Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create space link")
	}
	return nil
}

func (r *LinkRepository) FindSpaceLinkBySecret(ctx context.Context, secret string) (*domain.SpaceLink, error) {
	var link domain.SpaceLink
	if err := r.db.GetContext(ctx, &link, `SELECT * FROM space_links WHERE secret = $1`, secret); err != nil {
		return nil, notFound(err, "space link")
	}
	return &link, nil
}

func (r *LinkRepository) GetSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) (*domain.SpaceLink, error) {
	var link domain.SpaceLink
	query := `SELECT * FROM space_links WHERE space_id = $1 AND secret = $2`
	if err := r.db.GetContext(ctx, &link, query, spaceID, secret); err != nil {
		return nil, notFound(err, "space link")
	}
	return &link, nil
}

func (r *LinkRepository) FindActiveSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) (*domain.SpaceLink, error) {
	var link domain.SpaceLink
	query := `
        SELECT * FROM space_links
        WHERE space_id = $1
        AND secret = $2
        AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`

	if err := r.db.GetContext(ctx, &link, query, spaceID, secret); err != nil {
		return nil, notFound(err, "space link")
	}
	return &link, nil
}

func (r *LinkRepository) ListSpaceLinks(ctx context.Context, spaceID uuid.UUID) ([]domain.SpaceLink, error) {
	links := []domain.SpaceLink{}
	query := `SELECT * FROM space_links WHERE space_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &links, query, spaceID); err != nil {
		return nil, fmt.Errorf("failed to list space links: %w", err)
	}
	return links, nil
}

func (r *LinkRepository) UpdateSpaceLink(ctx context.Context, link *domain.SpaceLink) error {
	query := `
        UPDATE space_links
        SET expires_at = $1, notes = $2, updated_at = CURRENT_TIMESTAMP
        WHERE id = $3
        RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query, link.ExpiresAt, link.Notes, link.ID).Scan(&link.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("space link: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("failed to update space link: %w", err)
	}
	return nil
}

func (r *LinkRepository) DeleteSpaceLink(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM space_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete space link: %w", err)
	}
	return expectAffected(res, "space link")
}

func (r *LinkRepository) DeleteSpaceLinksBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM space_links WHERE space_id = $1`, spaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete space links: %w", err)
	}
	return res.RowsAffected()
}

func (r *LinkRepository) DeleteExpiredSpaceLinks(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM space_links WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired space links: %w", err)
	}
	return res.RowsAffected()
}
