package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sharebox/internal/domain"
)

type FileRepository struct {
	db Queryer
}

func NewFileRepository(db Queryer) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	query := `
        INSERT INTO files (id, name, mime_type, size_bytes, owner_id, space_id, storage_ref, password_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		file.ID,
		file.Name,
		file.MIMEType,
		file.SizeBytes,
		file.OwnerID,
		file.SpaceID,
		file.StorageRef,
		file.PasswordHash,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	var file domain.File
	if err := r.db.GetContext(ctx, &file, `SELECT * FROM files WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "file")
	}
	return &file, nil
}

func (r *FileRepository) ListBySpace(ctx context.Context, spaceID uuid.UUID) ([]domain.File, error) {
	files := []domain.File{}
	query := `SELECT * FROM files WHERE space_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &files, query, spaceID); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (r *FileRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	query := `
        UPDATE files
        SET name = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return expectAffected(res, "file")
}

func (r *FileRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash *string) error {
	query := `
        UPDATE files
        SET password_hash = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, hash, id)
	if err != nil {
		return fmt.Errorf("failed to update file password: %w", err)
	}
	return expectAffected(res, "file")
}

// Delete удаляет запись файла. Ссылки на файл должны быть удалены раньше.
func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return expectAffected(res, "file")
}

func (r *FileRepository) DeleteBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE space_id = $1`, spaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete space files: %w", err)
	}
	return res.RowsAffected()
}
