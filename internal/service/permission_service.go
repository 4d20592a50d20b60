package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sharebox/internal/domain"
	"sharebox/internal/repository"
)

// OperationType определяет тип операции владельца
type OperationType string

const (
	OperationView     OperationType = "view"
	OperationDelete   OperationType = "delete"
	OperationShare    OperationType = "share"
	OperationLock     OperationType = "lock"
	OperationUpload   OperationType = "upload"
	OperationDownload OperationType = "download"
)

// PermissionService проверяет, что вызывающий является владельцем ресурса или администратор.
// Гостевой доступ по ссылкам проверяет AccessEvaluator.
type PermissionService struct {
	uow repository.UnitOfWork
}

func NewPermissionService(uow repository.UnitOfWork) *PermissionService {
	return &PermissionService{uow: uow}
}

// CheckFile возвращает файл, если caller может выполнить над ним операцию
func (s *PermissionService) CheckFile(ctx context.Context, caller *domain.Caller, fileID uuid.UUID, op OperationType) (*domain.File, error) {
	file, err := s.uow.Stores().Files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, file.OwnerID, op); err != nil {
		return nil, fmt.Errorf("file %s: %w", fileID, err)
	}
	return file, nil
}

// CheckSpace возвращает пространство, если caller может выполнить над ним операцию
func (s *PermissionService) CheckSpace(ctx context.Context, caller *domain.Caller, spaceID uuid.UUID, op OperationType) (*domain.Space, error) {
	space, err := s.uow.Stores().Spaces.GetByID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, space.OwnerID, op); err != nil {
		return nil, fmt.Errorf("space %s: %w", spaceID, err)
	}
	return space, nil
}

func authorize(caller *domain.Caller, ownerID string, op OperationType) error {
	if caller == nil {
		return fmt.Errorf("%s requires authentication: %w", op, domain.ErrUnauthorized)
	}
	if !caller.CanManage(ownerID) {
		return fmt.Errorf("%s denied for %s: %w", op, caller.ID, domain.ErrForbidden)
	}
	return nil
}
