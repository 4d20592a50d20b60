package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"sharebox/internal/domain"
)

// Queryer: общее подмножество *sqlx.DB и *sqlx.Tx, через которое работают репозитории
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// FileStore: хранилище метаданных файлов
type FileStore interface {
	Create(ctx context.Context, file *domain.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error)
	ListBySpace(ctx context.Context, spaceID uuid.UUID) ([]domain.File, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error)
}

// SpaceStore: хранилище пространств
type SpaceStore interface {
	Create(ctx context.Context, space *domain.Space) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Space, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Space, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LinkStore: хранилище ссылок и их счётчиков скачиваний.
// Единственный источник истины о состоянии ссылок.
type LinkStore interface {
	CreateFileLink(ctx context.Context, link *domain.FileLink) error
	// FindFileLinkBySecret ищет ссылку по секрету без учёта срока действия
	FindFileLinkBySecret(ctx context.Context, secret string) (*domain.FileLink, error)
	// GetFileLink ищет точную пару (fileID, secret) без учёта срока действия
	GetFileLink(ctx context.Context, fileID uuid.UUID, secret string) (*domain.FileLink, error)
	// FindActiveFileLink: как GetFileLink, но истёкшие ссылки не находятся
	FindActiveFileLink(ctx context.Context, fileID uuid.UUID, secret string) (*domain.FileLink, error)
	ListFileLinks(ctx context.Context, fileID uuid.UUID, includeChildren bool) ([]domain.FileLink, error)
	ListChildFileLinks(ctx context.Context, spaceLinkID uuid.UUID) ([]domain.FileLink, error)
	UpdateFileLink(ctx context.Context, link *domain.FileLink) error
	DeleteFileLink(ctx context.Context, id uuid.UUID) error
	DeleteFileLinksByFile(ctx context.Context, fileID uuid.UUID) (int64, error)
	DeleteFileLinksByParent(ctx context.Context, spaceLinkID uuid.UUID) (int64, error)
	DeleteFileLinksBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error)
	UpdateChildExpiry(ctx context.Context, spaceLinkID uuid.UUID, expiresAt *time.Time) (int64, error)
	// IncrementDownloads атомарно увеличивает счётчик, если ссылка активна и лимит не исчерпан
	IncrementDownloads(ctx context.Context, id uuid.UUID) (*domain.FileLink, error)
	DeleteIfExhausted(ctx context.Context, id uuid.UUID) (bool, error)
	// LockActiveFileLinks возвращает ссылки из ids, которые ещё активны и не
	// исчерпаны. Ссылки с лимитом блокируются до конца транзакции, безлимитные нет.
	LockActiveFileLinks(ctx context.Context, ids []uuid.UUID) ([]domain.FileLink, error)
	DeleteExpiredFileLinks(ctx context.Context) (int64, error)

	CreateSpaceLink(ctx context.Context, link *domain.SpaceLink) error
	FindSpaceLinkBySecret(ctx context.Context, secret string) (*domain.SpaceLink, error)
	GetSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) (*domain.SpaceLink, error)
	FindActiveSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) (*domain.SpaceLink, error)
	ListSpaceLinks(ctx context.Context, spaceID uuid.UUID) ([]domain.SpaceLink, error)
	UpdateSpaceLink(ctx context.Context, link *domain.SpaceLink) error
	DeleteSpaceLink(ctx context.Context, id uuid.UUID) error
	DeleteSpaceLinksBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error)
	DeleteExpiredSpaceLinks(ctx context.Context) (int64, error)
}

// Stores: набор репозиториев, привязанных к одному соединению или транзакции
type Stores struct {
	Files  FileStore
	Spaces SpaceStore
	Links  LinkStore
}

// UnitOfWork выдаёт репозитории и выполняет функцию в одной транзакции
type UnitOfWork interface {
	Stores() Stores
	WithinTx(ctx context.Context, fn func(s Stores) error) error
}

// Store: реализация UnitOfWork поверх PostgreSQL
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func storesFor(q Queryer) Stores {
	return Stores{
		Files:  NewFileRepository(q),
		Spaces: NewSpaceRepository(q),
		Links:  NewLinkRepository(q),
	}
}

func (s *Store) Stores() Stores {
	return storesFor(s.db)
}

// WithinTx выполняет fn в транзакции; любая ошибка откатывает все изменения
func (s *Store) WithinTx(ctx context.Context, fn func(s Stores) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("[WithinTx] rollback failed: %v", err)
		}
	}()

	if err := fn(storesFor(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping проверяет доступность базы
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func expectAffected(res sql.Result, what string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

// Коды ошибок PostgreSQL, которые превращаются в доменные
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// mapWriteError переводит нарушения ограничений в ErrConflict
func mapWriteError(err error, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation, pgCheckViolation:
			return fmt.Errorf("%s: %s: %w", action, pqErr.Constraint, domain.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}
