package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"sharebox/internal/archive"
	"sharebox/internal/domain"
	"sharebox/internal/metrics"
	"sharebox/internal/storage"
)

// FileDelivery передаёт содержимое файла клиенту. Ошибка означает, что
// передача не завершилась и скачивание не учитывается.
type FileDelivery func(file *domain.File, content storage.Object) error

// ArchiveDelivery передаёт клиенту готовый архив пространства
type ArchiveDelivery func(name string, content io.ReadSeeker, size int64) error

// FileShareInfo: ответ на проверку секрета ссылки на файл
type FileShareInfo struct {
	FileID             uuid.UUID    `json:"file_id"`
	Name               string       `json:"name"`
	SizeBytes          int64        `json:"size_bytes"`
	Locked             bool         `json:"locked"`
	RemainingDownloads domain.Quota `json:"remaining_downloads"`
	ExpiresAt          *time.Time   `json:"expires_at"`
}

// SpaceShareInfo: ответ на проверку секрета ссылки на пространство
type SpaceShareInfo struct {
	SpaceID   uuid.UUID  `json:"space_id"`
	Name      string     `json:"name"`
	Locked    bool       `json:"locked"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// ShareService обслуживает гостевые запросы по публичным ссылкам
type ShareService struct {
	access     *AccessEvaluator
	accountant *DownloadAccountant
	blobs      storage.BlobStore
	archiver   *archive.Builder
}

func NewShareService(
	access *AccessEvaluator,
	accountant *DownloadAccountant,
	blobs storage.BlobStore,
	archiver *archive.Builder,
) *ShareService {
	return &ShareService{
		access:     access,
		accountant: accountant,
		blobs:      blobs,
		archiver:   archiver,
	}
}

// VerifyFileSecret сообщает гостю, куда ведёт ссылка и нужен ли пароль
func (s *ShareService) VerifyFileSecret(ctx context.Context, secret string) (*FileShareInfo, error) {
	file, link, err := s.access.ResolveFileSecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	return &FileShareInfo{
		FileID:             file.ID,
		Name:               file.Name,
		SizeBytes:          file.SizeBytes,
		Locked:             file.Locked(),
		RemainingDownloads: link.Remaining(),
		ExpiresAt:          link.ExpiresAt,
	}, nil
}

func (s *ShareService) VerifySpaceSecret(ctx context.Context, secret string) (*SpaceShareInfo, error) {
	space, link, err := s.access.ResolveSpaceSecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	return &SpaceShareInfo{
		SpaceID:   space.ID,
		Name:      space.Name,
		Locked:    space.Locked(),
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// SpaceAccess проверяет ссылку и пароль пространства и возвращает гостевое представление
func (s *ShareService) SpaceAccess(ctx context.Context, req SpaceAccessRequest) (*domain.GuestSpaceView, error) {
	grant, err := s.access.AuthorizeSpace(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.access.SpaceView(ctx, grant)
}

// DownloadFile проверяет доступ и передаёт файл. Скачивание по ссылке
// учитывается только после успешной передачи.
func (s *ShareService) DownloadFile(ctx context.Context, req FileAccessRequest, deliver FileDelivery) error {
	grant, err := s.access.AuthorizeFile(ctx, req)
	if err != nil {
		return err
	}

	if grant.Link == nil {
		return s.deliverFile(ctx, grant.File, deliver)
	}

	_, err = s.accountant.ServeLinks(ctx, metrics.DownloadKindFile, []uuid.UUID{grant.Link.ID},
		func(ctx context.Context, active []domain.FileLink) error {
			// Ссылку успел исчерпать параллельный запрос
			if len(active) == 0 {
				return fmt.Errorf("file link retired: %w", domain.ErrNotFound)
			}
			return s.deliverFile(ctx, grant.File, deliver)
		})
	return err
}

// DownloadSpace собирает архив из доступных файлов пространства и передаёт его.
// Файлы с паролем в архив не попадают и их счётчики не меняются.
func (s *ShareService) DownloadSpace(ctx context.Context, req SpaceAccessRequest, deliver ArchiveDelivery) error {
	grant, err := s.access.AuthorizeSpace(ctx, req)
	if err != nil {
		return err
	}

	items, err := s.access.ArchiveItems(ctx, grant)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no downloadable files in space %s: %w", grant.Space.ID, domain.ErrNotFound)
	}

	linkIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		linkIDs = append(linkIDs, item.Link.ID)
	}

	counted, err := s.accountant.ServeLinks(ctx, metrics.DownloadKindSpace, linkIDs,
		func(ctx context.Context, active []domain.FileLink) error {
			entries := s.archiveEntries(items, active)
			if len(entries) == 0 {
				return fmt.Errorf("all file links retired: %w", domain.ErrNotFound)
			}

			built, err := s.archiver.Build(ctx, entries)
			if err != nil {
				return fmt.Errorf("failed to build archive: %v: %w", err, domain.ErrInternal)
			}
			defer built.Remove()

			f, err := built.Open()
			if err != nil {
				return fmt.Errorf("failed to open archive: %v: %w", err, domain.ErrInternal)
			}
			defer f.Close()

			return deliver(fmt.Sprintf("space-%s.zip", grant.Space.Name), f, built.Size)
		})
	if err != nil {
		return err
	}

	log.Printf("[DownloadSpace] space %s archive delivered, %d links counted", grant.Space.ID, counted)
	return nil
}

// archiveEntries оставляет файлы, чьи ссылки удалось заблокировать активными
func (s *ShareService) archiveEntries(items []ArchiveItem, active []domain.FileLink) []archive.Entry {
	alive := make(map[uuid.UUID]struct{}, len(active))
	for _, link := range active {
		alive[link.ID] = struct{}{}
	}

	entries := make([]archive.Entry, 0, len(active))
	for _, item := range items {
		if _, ok := alive[item.Link.ID]; !ok {
			continue
		}
		ref := item.File.StorageRef
		entries = append(entries, archive.Entry{
			Name:     item.File.Name,
			Modified: item.File.UpdatedAt,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return s.blobs.Get(ctx, ref)
			},
		})
	}
	return entries
}

func (s *ShareService) deliverFile(ctx context.Context, file *domain.File, deliver FileDelivery) error {
	content, err := s.blobs.Get(ctx, file.StorageRef)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("[DownloadFile] content of file %s is missing: %v", file.ID, err)
		}
		return fmt.Errorf("failed to open file content: %v: %w", err, domain.ErrInternal)
	}
	defer content.Close()

	return deliver(file, content)
}
