package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"sharebox/internal/domain"
	"sharebox/internal/repository"
	"sharebox/internal/storage"
)

const maxFileSize = 100 * 1024 * 1024 // 100MB максимальный размер файла

var errFileTooLarge = errors.New("file size exceeds maximum allowed size")

// FileService: операции владельца над файлами
type FileService struct {
	uow         repository.UnitOfWork
	blobs       storage.BlobStore
	hasher      PasswordHasher
	permissions *PermissionService
	links       *LinkService
}

func NewFileService(
	uow repository.UnitOfWork,
	blobs storage.BlobStore,
	hasher PasswordHasher,
	permissions *PermissionService,
	links *LinkService,
) *FileService {
	return &FileService{
		uow:         uow,
		blobs:       blobs,
		hasher:      hasher,
		permissions: permissions,
		links:       links,
	}
}

// storageKey: ключ содержимого в хранилище: <spaceID>/<fileID>
func storageKey(spaceID, fileID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", spaceID, fileID)
}

// Upload сохраняет содержимое, затем запись файла. Существующие ссылки
// пространства на новый файл не распространяются.
func (s *FileService) Upload(ctx context.Context, caller *domain.Caller, upload domain.FileUpload, content io.Reader) (*domain.File, error) {
	name := strings.TrimSpace(filepath.Base(upload.Name))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("file name is required: %w", domain.ErrInvalidInput)
	}
	if upload.Size > maxFileSize {
		return nil, fmt.Errorf("%v: max size is %d bytes: %w", errFileTooLarge, maxFileSize, domain.ErrInvalidInput)
	}

	space, err := s.permissions.CheckSpace(ctx, caller, upload.SpaceID, OperationUpload)
	if err != nil {
		return nil, err
	}

	file := &domain.File{
		ID:        uuid.New(),
		Name:      name,
		MIMEType:  upload.MIMEType,
		SizeBytes: upload.Size,
		OwnerID:   space.OwnerID,
		SpaceID:   space.ID,
	}
	file.StorageRef = storageKey(space.ID, file.ID)

	if err := s.blobs.Put(ctx, file.StorageRef, content, upload.Size, upload.MIMEType); err != nil {
		return nil, fmt.Errorf("failed to store file content: %v: %w", err, domain.ErrInternal)
	}

	if err := s.uow.Stores().Files.Create(ctx, file); err != nil {
		s.removeContent(file.StorageRef)
		return nil, err
	}

	log.Printf("[Upload] file %s (%d bytes) stored in space %s", file.ID, file.SizeBytes, space.ID)
	return file, nil
}

// Get возвращает файл с его прямыми ссылками
func (s *FileService) Get(ctx context.Context, caller *domain.Caller, fileID uuid.UUID) (*domain.FileInfo, error) {
	file, err := s.permissions.CheckFile(ctx, caller, fileID, OperationView)
	if err != nil {
		return nil, err
	}

	links, err := s.links.ListFileLinks(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	return &domain.FileInfo{File: *file, Locked: file.Locked(), Links: links}, nil
}

func (s *FileService) Rename(ctx context.Context, caller *domain.Caller, fileID uuid.UUID, name string) (*domain.File, error) {
	file, err := s.permissions.CheckFile(ctx, caller, fileID, OperationView)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("file name is required: %w", domain.ErrInvalidInput)
	}

	// Ключ хранилища не зависит от имени, переносить содержимое не нужно
	if err := s.uow.Stores().Files.UpdateName(ctx, file.ID, name); err != nil {
		return nil, err
	}
	file.Name = name
	return file, nil
}

// Delete удаляет ссылки и запись файла в одной транзакции, затем содержимое
func (s *FileService) Delete(ctx context.Context, caller *domain.Caller, fileID uuid.UUID) error {
	file, err := s.permissions.CheckFile(ctx, caller, fileID, OperationDelete)
	if err != nil {
		return err
	}

	var removed int64
	err = s.uow.WithinTx(ctx, func(st repository.Stores) error {
		n, err := st.Links.DeleteFileLinksByFile(ctx, file.ID)
		if err != nil {
			return err
		}
		removed = n
		return st.Files.Delete(ctx, file.ID)
	})
	if err != nil {
		return err
	}

	s.removeContent(file.StorageRef)
	log.Printf("[Delete] file %s deleted with %d links", file.ID, removed)
	return nil
}

// Lock ставит пароль на файл
func (s *FileService) Lock(ctx context.Context, caller *domain.Caller, fileID uuid.UUID, password, repeatPassword string) error {
	if err := checkNewPassword(password, repeatPassword); err != nil {
		return err
	}

	file, err := s.permissions.CheckFile(ctx, caller, fileID, OperationLock)
	if err != nil {
		return err
	}
	if file.Locked() {
		return fmt.Errorf("file %s is already locked: %w", file.ID, domain.ErrConflict)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.uow.Stores().Files.UpdatePassword(ctx, file.ID, &hash)
}

// Unlock снимает пароль; требуется текущий пароль
func (s *FileService) Unlock(ctx context.Context, caller *domain.Caller, fileID uuid.UUID, password string) error {
	file, err := s.permissions.CheckFile(ctx, caller, fileID, OperationLock)
	if err != nil {
		return err
	}
	if !file.Locked() {
		return fmt.Errorf("file %s is not locked: %w", file.ID, domain.ErrConflict)
	}
	if !s.hasher.Verify(password, *file.PasswordHash) {
		return fmt.Errorf("incorrect password: %w", domain.ErrUnauthorized)
	}
	return s.uow.Stores().Files.UpdatePassword(ctx, file.ID, nil)
}

// removeContent удаляет содержимое без учёта отмены запроса; ошибка только логируется
func (s *FileService) removeContent(key string) {
	if err := s.blobs.Delete(context.Background(), key); err != nil {
		log.Printf("[FileService] failed to delete content %s: %v", key, err)
	}
}

func checkNewPassword(password, repeatPassword string) error {
	if password == "" {
		return fmt.Errorf("password is required: %w", domain.ErrInvalidInput)
	}
	if password != repeatPassword {
		return fmt.Errorf("passwords do not match: %w", domain.ErrInvalidInput)
	}
	return nil
}
