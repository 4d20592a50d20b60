package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sharebox/internal/domain"
)

type SpaceRepository struct {
	db Queryer
}

func NewSpaceRepository(db Queryer) *SpaceRepository {
	return &SpaceRepository{db: db}
}

func (r *SpaceRepository) Create(ctx context.Context, space *domain.Space) error {
	query := `
        INSERT INTO spaces (id, name, owner_id, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query, space.ID, space.Name, space.OwnerID, space.PasswordHash).
		Scan(&space.CreatedAt, &space.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create space: %w", err)
	}
	return nil
}

func (r *SpaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Space, error) {
	var space domain.Space
	if err := r.db.GetContext(ctx, &space, `SELECT * FROM spaces WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "space")
	}
	return &space, nil
}

func (r *SpaceRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Space, error) {
	spaces := []domain.Space{}
	query := `SELECT * FROM spaces WHERE owner_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &spaces, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	return spaces, nil
}

func (r *SpaceRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	query := `
        UPDATE spaces
        SET name = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename space: %w", err)
	}
	return expectAffected(res, "space")
}

func (r *SpaceRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash *string) error {
	query := `
        UPDATE spaces
        SET password_hash = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, hash, id)
	if err != nil {
		return fmt.Errorf("failed to update space password: %w", err)
	}
	return expectAffected(res, "space")
}

// Delete удаляет пространство. Файлы и ссылки удаляются вызывающим раньше.
func (r *SpaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete space: %w", err)
	}
	return expectAffected(res, "space")
}
