package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sharebox/internal/domain"
	"sharebox/internal/metrics"
	"sharebox/internal/repository"
)

// LinkService создаёт, изменяет и удаляет публичные ссылки.
// Права владельца проверяются до вызова (PermissionService).
type LinkService struct {
	uow     repository.UnitOfWork
	secrets SecretGenerator
	baseURL string
	now     func() time.Time
}

func NewLinkService(uow repository.UnitOfWork, secrets SecretGenerator, baseURL string) *LinkService {
	return &LinkService{
		uow:     uow,
		secrets: secrets,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// CreateFileLink выпускает прямую ссылку на файл. Несколько прямых ссылок
// на один файл допускаются.
func (s *LinkService) CreateFileLink(ctx context.Context, fileID uuid.UUID, opts domain.FileLinkOptions) (*domain.FileLink, error) {
	if err := s.validateFileLinkOptions(opts); err != nil {
		return nil, err
	}

	stores := s.uow.Stores()
	if _, err := stores.Files.GetByID(ctx, fileID); err != nil {
		return nil, err
	}

	link := &domain.FileLink{
		FileID:       fileID,
		MaxDownloads: opts.MaxDownloads.Apply(nil),
		ExpiresAt:    opts.ExpiresAt.Apply(nil),
		Notes:        opts.Notes.Apply(nil),
	}

	err := s.withFreshSecret(func(secret string) error {
		link.ID = uuid.New()
		link.Secret = secret
		return stores.Links.CreateFileLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CreateFileLink] file %s shared with link %s", fileID, maskSecret(link.Secret))
	return link, nil
}

// ModifyFileLink меняет только переданные поля ссылки (fileID, secret).
// Срок действия дочерней ссылки задаётся только через ссылку пространства.
func (s *LinkService) ModifyFileLink(ctx context.Context, fileID uuid.UUID, secret string, opts domain.FileLinkOptions) (*domain.FileLink, error) {
	if err := s.validateFileLinkOptions(opts); err != nil {
		return nil, err
	}

	var updated *domain.FileLink
	err := s.uow.WithinTx(ctx, func(st repository.Stores) error {
		link, err := st.Links.GetFileLink(ctx, fileID, secret)
		if err != nil {
			return err
		}
		// истёкшая ссылка не оживает от нового срока
		if link.Expired(s.now()) {
			return fmt.Errorf("file link expired: %w", domain.ErrNotFound)
		}

		if link.Child() && opts.ExpiresAt.Set {
			return fmt.Errorf("child link expiry follows its space link: %w", domain.ErrForbidden)
		}

		link.MaxDownloads = opts.MaxDownloads.Apply(link.MaxDownloads)
		link.ExpiresAt = opts.ExpiresAt.Apply(link.ExpiresAt)
		link.Notes = opts.Notes.Apply(link.Notes)

		if link.MaxDownloads != nil && *link.MaxDownloads <= link.Downloads {
			return fmt.Errorf("max downloads %d not above %d already served: %w",
				*link.MaxDownloads, link.Downloads, domain.ErrConflict)
		}

		if err := st.Links.UpdateFileLink(ctx, link); err != nil {
			return err
		}
		updated = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveFileLink удаляет прямую ссылку. Дочерние ссылки удаляются только вместе
// с родительской ссылкой пространства. Повторное удаление не считается ошибкой.
func (s *LinkService) RemoveFileLink(ctx context.Context, fileID uuid.UUID, secret string) error {
	stores := s.uow.Stores()

	link, err := stores.Links.GetFileLink(ctx, fileID, secret)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if link.Child() {
		return fmt.Errorf("link belongs to space link %s: %w", link.ParentSpaceLinkID, domain.ErrForbidden)
	}

	if err := stores.Links.DeleteFileLink(ctx, link.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	metrics.ObserveRetired(metrics.RetireRemoved, 1)
	return nil
}

// ListFileLinks возвращает прямые ссылки файла
func (s *LinkService) ListFileLinks(ctx context.Context, fileID uuid.UUID) ([]domain.PublicLink, error) {
	links, err := s.uow.Stores().Links.ListFileLinks(ctx, fileID, false)
	if err != nil {
		return nil, err
	}
	return s.fileLinkViews(links), nil
}

// CreateSpaceLink в одной транзакции создаёт ссылку пространства и по дочерней
// ссылке на каждый файл, который сейчас в нём лежит
func (s *LinkService) CreateSpaceLink(ctx context.Context, spaceID uuid.UUID, opts domain.SpaceLinkOptions) (*domain.SpaceLink, error) {
	expiresAt := opts.ExpiresAt.Apply(nil)
	if err := s.validateExpiry(expiresAt); err != nil {
		return nil, err
	}

	var (
		created  *domain.SpaceLink
		children int
	)

	// Ошибка внутри транзакции PostgreSQL делает её непригодной,
	// поэтому при совпадении секрета повторяется вся транзакция
	err := s.retryOnConflict(func() error {
		return s.uow.WithinTx(ctx, func(st repository.Stores) error {
			if _, err := st.Spaces.GetByID(ctx, spaceID); err != nil {
				return err
			}

			secret, err := s.secrets.Generate()
			if err != nil {
				return err
			}
			link := &domain.SpaceLink{
				ID:        uuid.New(),
				SpaceID:   spaceID,
				Secret:    secret,
				ExpiresAt: expiresAt,
				Notes:     opts.Notes.Apply(nil),
			}
			if err := st.Links.CreateSpaceLink(ctx, link); err != nil {
				return err
			}

			files, err := st.Files.ListBySpace(ctx, spaceID)
			if err != nil {
				return err
			}

			notes := domain.ChildLinkNotes
			for _, file := range files {
				childSecret, err := s.secrets.Generate()
				if err != nil {
					return err
				}
				child := &domain.FileLink{
					ID:                uuid.New(),
					FileID:            file.ID,
					Secret:            childSecret,
					ExpiresAt:         expiresAt,
					ParentSpaceLinkID: &link.ID,
					Notes:             &notes,
				}
				if err := st.Links.CreateFileLink(ctx, child); err != nil {
					return err
				}
			}

			created = link
			children = len(files)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CreateSpaceLink] space %s shared with link %s, %d child links",
		spaceID, maskSecret(created.Secret), children)
	return created, nil
}

// ModifySpaceLink обновляет ссылку пространства и переносит новый срок действия
// на все дочерние ссылки. Лимиты дочерних ссылок не меняются.
func (s *LinkService) ModifySpaceLink(ctx context.Context, spaceID uuid.UUID, secret string, opts domain.SpaceLinkOptions) (*domain.SpaceLink, error) {
	if opts.ExpiresAt.Set {
		if err := s.validateExpiry(opts.ExpiresAt.Value); err != nil {
			return nil, err
		}
	}

	var updated *domain.SpaceLink
	err := s.uow.WithinTx(ctx, func(st repository.Stores) error {
		link, err := st.Links.GetSpaceLink(ctx, spaceID, secret)
		if err != nil {
			return err
		}
		if link.Expired(s.now()) {
			return fmt.Errorf("space link expired: %w", domain.ErrNotFound)
		}

		link.ExpiresAt = opts.ExpiresAt.Apply(link.ExpiresAt)
		link.Notes = opts.Notes.Apply(link.Notes)

		if err := st.Links.UpdateSpaceLink(ctx, link); err != nil {
			return err
		}

		if opts.ExpiresAt.Set {
			n, err := st.Links.UpdateChildExpiry(ctx, link.ID, link.ExpiresAt)
			if err != nil {
				return err
			}
			log.Printf("[ModifySpaceLink] expiry of %d child links updated", n)
		}

		updated = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// errAlreadyRemoved откатывает пустую транзакцию удаления
var errAlreadyRemoved = errors.New("link already removed")

// RemoveSpaceLink удаляет дочерние ссылки, затем саму ссылку пространства.
// Повторное удаление не считается ошибкой.
func (s *LinkService) RemoveSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) error {
	var removed int64
	err := s.uow.WithinTx(ctx, func(st repository.Stores) error {
		link, err := st.Links.GetSpaceLink(ctx, spaceID, secret)
		if errors.Is(err, domain.ErrNotFound) {
			return errAlreadyRemoved
		}
		if err != nil {
			return err
		}

		n, err := st.Links.DeleteFileLinksByParent(ctx, link.ID)
		if err != nil {
			return err
		}
		if err := st.Links.DeleteSpaceLink(ctx, link.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		removed = n
		return nil
	})
	if errors.Is(err, errAlreadyRemoved) {
		return nil
	}
	if err != nil {
		return err
	}

	metrics.ObserveRetired(metrics.RetireRemoved, int(removed)+1)
	return nil
}

func (s *LinkService) ListSpaceLinks(ctx context.Context, spaceID uuid.UUID) ([]domain.PublicLink, error) {
	links, err := s.uow.Stores().Links.ListSpaceLinks(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.PublicLink, 0, len(links))
	for i := range links {
		views = append(views, domain.NewSpaceLinkView(s.baseURL, &links[i]))
	}
	return views, nil
}

// PurgeExpired физически удаляет истёкшие ссылки. Для доступа они и так
// не существуют, очистка только освобождает место.
func (s *LinkService) PurgeExpired(ctx context.Context) (int64, error) {
	var files, spaces int64
	err := s.uow.WithinTx(ctx, func(st repository.Stores) error {
		var err error
		if files, err = st.Links.DeleteExpiredFileLinks(ctx); err != nil {
			return err
		}
		if spaces, err = st.Links.DeleteExpiredSpaceLinks(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := files + spaces
	if total > 0 {
		metrics.ObserveRetired(metrics.RetireExpired, int(total))
		log.Printf("[PurgeExpired] removed %d file links and %d space links", files, spaces)
	}
	return total, nil
}

// FileLinkView: внешнее представление одной ссылки на файл
func (s *LinkService) FileLinkView(link *domain.FileLink) domain.PublicLink {
	return domain.NewFileLinkView(s.baseURL, link)
}

func (s *LinkService) SpaceLinkView(link *domain.SpaceLink) domain.PublicLink {
	return domain.NewSpaceLinkView(s.baseURL, link)
}

// fileLinkViews строит внешнее представление ссылок на файл
func (s *LinkService) fileLinkViews(links []domain.FileLink) []domain.PublicLink {
	views := make([]domain.PublicLink, 0, len(links))
	for i := range links {
		views = append(views, domain.NewFileLinkView(s.baseURL, &links[i]))
	}
	return views
}

func (s *LinkService) validateFileLinkOptions(opts domain.FileLinkOptions) error {
	if opts.MaxDownloads.Value != nil && *opts.MaxDownloads.Value <= 0 {
		return fmt.Errorf("max downloads must be positive: %w", domain.ErrInvalidInput)
	}
	if opts.ExpiresAt.Set {
		return s.validateExpiry(opts.ExpiresAt.Value)
	}
	return nil
}

func (s *LinkService) validateExpiry(expiresAt *time.Time) error {
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return fmt.Errorf("expiry %s is in the past: %w", expiresAt.Format(time.RFC3339), domain.ErrInvalidInput)
	}
	return nil
}

// withFreshSecret повторяет insert с новым секретом, если секрет уже занят
func (s *LinkService) withFreshSecret(insert func(secret string) error) error {
	return s.retryOnConflict(func() error {
		secret, err := s.secrets.Generate()
		if err != nil {
			return err
		}
		return insert(secret)
	})
}

func (s *LinkService) retryOnConflict(fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxSecretAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		log.Printf("[LinkService] secret collision, attempt %d/%d", attempt, maxSecretAttempts)
	}
	return fmt.Errorf("failed to allocate unique secret: %w", err)
}
