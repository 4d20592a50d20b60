package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sharebox/internal/domain"
	"sharebox/internal/repository"
)

// FileAccessRequest: запрос на доступ к файлу. Пустой Secret означает доступ владельца.
type FileAccessRequest struct {
	FileID   uuid.UUID
	Secret   string
	Password string
	Caller   *domain.Caller
}

// SpaceAccessRequest: запрос гостя на доступ к пространству
type SpaceAccessRequest struct {
	SpaceID  uuid.UUID
	Secret   string
	Password string
	Caller   *domain.Caller
}

// FileGrant: результат успешной проверки доступа к файлу.
// Link равен nil, если доступ получен владельцем без ссылки.
type FileGrant struct {
	File *domain.File
	Link *domain.FileLink
}

type SpaceGrant struct {
	Space *domain.Space
	Link  *domain.SpaceLink
}

// ArchiveItem: файл, попадающий в архив пространства, и ссылка, которую нужно учесть
type ArchiveItem struct {
	File domain.File
	Link domain.FileLink
}

// AccessEvaluator решает, пускать ли запрос к файлу или пространству.
// Проверки ссылки, лимита и пароля должны пройти все.
type AccessEvaluator struct {
	uow     repository.UnitOfWork
	hasher  PasswordHasher
	baseURL string
	now     func() time.Time
}

func NewAccessEvaluator(uow repository.UnitOfWork, hasher PasswordHasher, baseURL string) *AccessEvaluator {
	return &AccessEvaluator{
		uow:     uow,
		hasher:  hasher,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// AuthorizeFile проверяет доступ к файлу по ссылке или как владелец
func (e *AccessEvaluator) AuthorizeFile(ctx context.Context, req FileAccessRequest) (*FileGrant, error) {
	stores := e.uow.Stores()

	file, err := stores.Files.GetByID(ctx, req.FileID)
	if err != nil {
		return nil, err
	}

	grant := &FileGrant{File: file}

	if req.Secret == "" {
		// Без секрета пускаем только владельца или администратора
		if req.Caller == nil {
			return nil, fmt.Errorf("share secret required: %w", domain.ErrNotFound)
		}
		if !req.Caller.CanManage(file.OwnerID) {
			return nil, fmt.Errorf("caller %s does not own file %s: %w", req.Caller.ID, file.ID, domain.ErrForbidden)
		}
	} else {
		link, err := stores.Links.FindActiveFileLink(ctx, file.ID, req.Secret)
		if err != nil {
			return nil, err
		}
		if err := e.checkFileLink(link); err != nil {
			log.Printf("[AuthorizeFile] link %s for file %s rejected: %v", maskSecret(req.Secret), file.ID, err)
			return nil, err
		}
		grant.Link = link
	}

	if err := e.checkPassword(file.PasswordHash, req.Password); err != nil {
		return nil, fmt.Errorf("file %s: %w", file.ID, err)
	}

	return grant, nil
}

// AuthorizeSpace проверяет гостевой доступ к пространству по ссылке и паролю
func (e *AccessEvaluator) AuthorizeSpace(ctx context.Context, req SpaceAccessRequest) (*SpaceGrant, error) {
	stores := e.uow.Stores()

	space, err := stores.Spaces.GetByID(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}

	if req.Secret == "" {
		return nil, fmt.Errorf("space share secret required: %w", domain.ErrNotFound)
	}

	link, err := stores.Links.FindActiveSpaceLink(ctx, space.ID, req.Secret)
	if err != nil {
		return nil, err
	}
	if link.Expired(e.now()) {
		return nil, fmt.Errorf("space link expired: %w", domain.ErrNotFound)
	}

	if err := e.checkPassword(space.PasswordHash, req.Password); err != nil {
		return nil, fmt.Errorf("space %s: %w", space.ID, err)
	}

	return &SpaceGrant{Space: space, Link: link}, nil
}

// ResolveFileSecret находит файл по одному секрету (страница гостевой ссылки).
// Пароль здесь не проверяется: ответ лишь сообщает, нужен ли он.
func (e *AccessEvaluator) ResolveFileSecret(ctx context.Context, secret string) (*domain.File, *domain.FileLink, error) {
	stores := e.uow.Stores()

	link, err := stores.Links.FindFileLinkBySecret(ctx, secret)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkFileLink(link); err != nil {
		return nil, nil, err
	}

	file, err := stores.Files.GetByID(ctx, link.FileID)
	if err != nil {
		return nil, nil, err
	}
	return file, link, nil
}

func (e *AccessEvaluator) ResolveSpaceSecret(ctx context.Context, secret string) (*domain.Space, *domain.SpaceLink, error) {
	stores := e.uow.Stores()

	link, err := stores.Links.FindSpaceLinkBySecret(ctx, secret)
	if err != nil {
		return nil, nil, err
	}
	if link.Expired(e.now()) {
		return nil, nil, fmt.Errorf("space link expired: %w", domain.ErrNotFound)
	}

	space, err := stores.Spaces.GetByID(ctx, link.SpaceID)
	if err != nil {
		return nil, nil, err
	}
	return space, link, nil
}

// SpaceView строит гостевое представление пространства. Файлы без дочерней
// ссылки под предъявленным SpaceLink попадают в список без данных ссылки.
func (e *AccessEvaluator) SpaceView(ctx context.Context, grant *SpaceGrant) (*domain.GuestSpaceView, error) {
	files, children, err := e.spaceFilesWithLinks(ctx, grant)
	if err != nil {
		return nil, err
	}

	view := &domain.GuestSpaceView{
		ID:        grant.Space.ID,
		Name:      grant.Space.Name,
		OwnerID:   grant.Space.OwnerID,
		ExpiresAt: grant.Link.ExpiresAt,
		Files:     make([]domain.GuestFileView, 0, len(files)),
	}

	for _, file := range files {
		item := domain.GuestFileView{
			ID:        file.ID,
			Name:      file.Name,
			SizeBytes: file.SizeBytes,
			Locked:    file.Locked(),
		}
		if link, ok := children[file.ID]; ok {
			remaining := link.Remaining()
			item.ShareURL = domain.ShareURL(e.baseURL, domain.ResourceTypeFile, link.Secret)
			item.ExpiresAt = link.ExpiresAt
			item.DownloadsRemaining = &remaining
		}
		view.Files = append(view.Files, item)
	}

	return view, nil
}

// ArchiveItems отбирает файлы для архива пространства: без пароля и с активной
// дочерней ссылкой под предъявленным SpaceLink
func (e *AccessEvaluator) ArchiveItems(ctx context.Context, grant *SpaceGrant) ([]ArchiveItem, error) {
	files, children, err := e.spaceFilesWithLinks(ctx, grant)
	if err != nil {
		return nil, err
	}

	items := make([]ArchiveItem, 0, len(files))
	for _, file := range files {
		if file.Locked() {
			continue
		}
		link, ok := children[file.ID]
		if !ok {
			continue
		}
		items = append(items, ArchiveItem{File: file, Link: link})
	}
	return items, nil
}

func (e *AccessEvaluator) spaceFilesWithLinks(ctx context.Context, grant *SpaceGrant) ([]domain.File, map[uuid.UUID]domain.FileLink, error) {
	stores := e.uow.Stores()

	files, err := stores.Files.ListBySpace(ctx, grant.Space.ID)
	if err != nil {
		return nil, nil, err
	}

	links, err := stores.Links.ListChildFileLinks(ctx, grant.Link.ID)
	if err != nil {
		return nil, nil, err
	}

	children := make(map[uuid.UUID]domain.FileLink, len(links))
	for _, link := range links {
		if e.checkFileLink(&link) != nil {
			continue
		}
		children[link.FileID] = link
	}
	return files, children, nil
}

// checkFileLink: проверки срока действия и лимита скачиваний
func (e *AccessEvaluator) checkFileLink(link *domain.FileLink) error {
	if link.Expired(e.now()) {
		return fmt.Errorf("file link expired: %w", domain.ErrNotFound)
	}
	if link.Exhausted() {
		return fmt.Errorf("file link exhausted: %w", domain.ErrNotFound)
	}
	return nil
}

// checkPassword: отсутствие пароля при заблокированном ресурсе означает отказ
func (e *AccessEvaluator) checkPassword(hash *string, password string) error {
	if hash == nil || *hash == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("password required: %w", domain.ErrUnauthorized)
	}
	if !e.hasher.Verify(password, *hash) {
		return fmt.Errorf("incorrect password: %w", domain.ErrUnauthorized)
	}
	return nil
}
