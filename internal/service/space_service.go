package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"sharebox/internal/archive"
	"sharebox/internal/domain"
	"sharebox/internal/repository"
	"sharebox/internal/storage"
)

// SpaceService: операции владельца над пространствами
type SpaceService struct {
	uow         repository.UnitOfWork
	blobs       storage.BlobStore
	hasher      PasswordHasher
	permissions *PermissionService
	links       *LinkService
	archiver    *archive.Builder
}

func NewSpaceService(
	uow repository.UnitOfWork,
	blobs storage.BlobStore,
	hasher PasswordHasher,
	permissions *PermissionService,
	links *LinkService,
	archiver *archive.Builder,
) *SpaceService {
	return &SpaceService{
		uow:         uow,
		blobs:       blobs,
		hasher:      hasher,
		permissions: permissions,
		links:       links,
		archiver:    archiver,
	}
}

// Create создаёт пространство; непустой password сразу блокирует его
func (s *SpaceService) Create(ctx context.Context, caller *domain.Caller, name, password string) (*domain.Space, error) {
	if caller == nil {
		return nil, fmt.Errorf("create space: %w", domain.ErrUnauthorized)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("space name is required: %w", domain.ErrInvalidInput)
	}

	space := &domain.Space{
		ID:      uuid.New(),
		Name:    name,
		OwnerID: caller.ID,
	}
	if password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, err
		}
		space.PasswordHash = &hash
	}

	if err := s.uow.Stores().Spaces.Create(ctx, space); err != nil {
		return nil, err
	}
	return space, nil
}

func (s *SpaceService) List(ctx context.Context, caller *domain.Caller) ([]domain.Space, error) {
	if caller == nil {
		return nil, fmt.Errorf("list spaces: %w", domain.ErrUnauthorized)
	}
	return s.uow.Stores().Spaces.ListByOwner(ctx, caller.ID)
}

// Get возвращает содержимое пространства и его ссылки
func (s *SpaceService) Get(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID) (*domain.SpaceContent, error) {
	space, err := s.permissions.CheckSpace(ctx, caller, spaceID, OperationView)
	if err != nil {
		return nil, err
	}

	files, err := s.uow.Stores().Files.ListBySpace(ctx, space.ID)
	if err != nil {
		return nil, err
	}

	links, err := s.links.ListSpaceLinks(ctx, space.ID)
	if err != nil {
		return nil, err
	}

	content := &domain.SpaceContent{
		Space:  *space,
		Locked: space.Locked(),
		Files:  make([]domain.SpaceFile, 0, len(files)),
		Links:  links,
	}
	for _, f := range files {
		content.Files = append(content.Files, domain.SpaceFile{
			ID:        f.ID,
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
			Locked:    f.Locked(),
			CreatedAt: f.CreatedAt,
		})
	}
	return content, nil
}

func (s *SpaceService) Rename(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID, name string) (*domain.Space, error) {
	space, err := s.permissions.CheckSpace(ctx, caller, spaceID, OperationView)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("space name is required: %w", domain.ErrInvalidInput)
	}
	if err := s.uow.Stores().Spaces.UpdateName(ctx, space.ID, name); err != nil {
		return nil, err
	}
	space.Name = name
	return space, nil
}

// Delete удаляет пространство каскадом: ссылки на файлы, файлы, ссылки
// пространства, само пространство. Содержимое файлов удаляется после фиксации.
func (s *SpaceService) Delete(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID) error {
	space, err := s.permissions.CheckSpace(ctx, caller, spaceID, OperationDelete)
	if err != nil {
		return err
	}

	var files []domain.File
	err = s.uow.WithinTx(ctx, func(st repository.Stores) error {
		var err error
		if files, err = st.Files.ListBySpace(ctx, space.ID); err != nil {
			return err
		}
		if _, err := st.Links.DeleteFileLinksBySpace(ctx, space.ID); err != nil {
			return err
		}
		if _, err := st.Files.DeleteBySpace(ctx, space.ID); err != nil {
			return err
		}
		if _, err := st.Links.DeleteSpaceLinksBySpace(ctx, space.ID); err != nil {
			return err
		}
		return st.Spaces.Delete(ctx, space.ID)
	})
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := s.blobs.Delete(context.Background(), f.StorageRef); err != nil {
			log.Printf("[DeleteSpace] failed to delete content %s: %v", f.StorageRef, err)
		}
	}

	log.Printf("[DeleteSpace] space %s deleted with %d files", space.ID, len(files))
	return nil
}

// Lock ставит пароль на пространство
func (s *SpaceService) Lock(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID, password, repeatPassword string) error {
	if err := checkNewPassword(password, repeatPassword); err != nil {
		return err
	}

	space, err := s.permissions.CheckSpace(ctx, caller, spaceID, OperationLock)
	if err != nil {
		return err
	}
	if space.Locked() {
		return fmt.Errorf("space %s is already locked: %w", space.ID, domain.ErrConflict)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.uow.Stores().Spaces.UpdatePassword(ctx, space.ID, &hash)
}

func (s *SpaceService) Unlock(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID, password string) error {
	space, err := s.permissions.CheckSpace(ctx, caller, spaceID, OperationLock)
	if err != nil {
		return err
	}
	if !space.Locked() {
		return fmt.Errorf("space %s is not locked: %w", space.ID, domain.ErrConflict)
	}
	if !s.hasher.Verify(password, *space.PasswordHash) {
		return fmt.Errorf("incorrect password: %w", domain.ErrUnauthorized)
	}
	return s.uow.Stores().Spaces.UpdatePassword(ctx, space.ID, nil)
}

// DownloadAll отдаёт владельцу архив всех незаблокированных файлов.
// Ссылки при этом не учитываются.
func (s *SpaceService) DownloadAll(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID, deliver ArchiveDelivery) error {
	space, err := s.permissions.CheckSpace(ctx, caller, spaceID, OperationDownload)
	if err != nil {
		return err
	}

	files, err := s.uow.Stores().Files.ListBySpace(ctx, space.ID)
	if err != nil {
		return err
	}

	entries := make([]archive.Entry, 0, len(files))
	for _, f := range files {
		if f.Locked() {
			continue
		}
		ref := f.StorageRef
		entries = append(entries, archive.Entry{
			Name:     f.Name,
			Modified: f.UpdatedAt,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return s.blobs.Get(ctx, ref)
			},
		})
	}
	if len(entries) == 0 {
		return fmt.Errorf("no downloadable files in space %s: %w", space.ID, domain.ErrNotFound)
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

	return deliver(fmt.Sprintf("space-%s.zip", space.Name), f, built.Size)
}
