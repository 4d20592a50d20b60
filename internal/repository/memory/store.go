package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sharebox/internal/domain"
	"sharebox/internal/repository"
)

// state: содержимое хранилища
type state struct {
	files      map[uuid.UUID]domain.File
	spaces     map[uuid.UUID]domain.Space
	fileLinks  map[uuid.UUID]domain.FileLink
	spaceLinks map[uuid.UUID]domain.SpaceLink
}

func (d *state) clone() *state {
	c := &state{
		files:      make(map[uuid.UUID]domain.File, len(d.files)),
		spaces:     make(map[uuid.UUID]domain.Space, len(d.spaces)),
		fileLinks:  make(map[uuid.UUID]domain.FileLink, len(d.fileLinks)),
		spaceLinks: make(map[uuid.UUID]domain.SpaceLink, len(d.spaceLinks)),
	}
	for k, v := range d.files {
		c.files[k] = v
	}
	for k, v := range d.spaces {
		c.spaces[k] = v
	}
	for k, v := range d.fileLinks {
		c.fileLinks[k] = copyFileLink(v)
	}
	for k, v := range d.spaceLinks {
		c.spaceLinks[k] = v
	}
	return c
}

// Store: UnitOfWork в памяти для тестов. Транзакции выполняются по одной,
// ошибка восстанавливает снимок данных. Блокировок строк нет, их заменяет
// последовательное выполнение транзакций.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *state
	now  func() time.Time

	// failCreate: сколько первых вставок ссылок вернут конфликт секрета
	failCreate int
}

func New() *Store {
	return &Store{
		data: &state{
			files:      map[uuid.UUID]domain.File{},
			spaces:     map[uuid.UUID]domain.Space{},
			fileLinks:  map[uuid.UUID]domain.FileLink{},
			spaceLinks: map[uuid.UUID]domain.SpaceLink{},
		},
		now: time.Now,
	}
}

func (m *Store) Stores() repository.Stores {
	return repository.Stores{
		Files:  &fileStore{m},
		Spaces: &spaceStore{m},
		Links:  &linkStore{m},
	}
}

func (m *Store) WithinTx(ctx context.Context, fn func(s repository.Stores) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(m.Stores()); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// SetClock подменяет часы, по которым проверяется срок действия ссылок
func (m *Store) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailNextCreates: следующие n вставок ссылок вернут конфликт секрета
func (m *Store) FailNextCreates(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = n
}

// FileLink возвращает копию сохранённой ссылки
func (m *Store) FileLink(id uuid.UUID) (domain.FileLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.data.fileLinks[id]
	return copyFileLink(l), ok
}

func (m *Store) FileLinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.fileLinks)
}

func (m *Store) SpaceLinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.spaceLinks)
}

func (m *Store) active(l domain.FileLink) bool {
	return !l.Expired(m.now())
}

func copyFileLink(l domain.FileLink) domain.FileLink {
	if l.MaxDownloads != nil {
		v := *l.MaxDownloads
		l.MaxDownloads = &v
	}
	if l.ExpiresAt != nil {
		v := *l.ExpiresAt
		l.ExpiresAt = &v
	}
	if l.Notes != nil {
		v := *l.Notes
		l.Notes = &v
	}
	return l
}

type fileStore struct{ m *Store }

func (f *fileStore) Create(ctx context.Context, file *domain.File) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if _, ok := f.m.data.spaces[file.SpaceID]; !ok {
		return fmt.Errorf("space: %w", domain.ErrNotFound)
	}
	file.CreatedAt = f.m.now()
	file.UpdatedAt = file.CreatedAt
	f.m.data.files[file.ID] = *file
	return nil
}

func (f *fileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	file, ok := f.m.data.files[id]
	if !ok {
		return nil, fmt.Errorf("file: %w", domain.ErrNotFound)
	}
	return &file, nil
}

func (f *fileStore) ListBySpace(ctx context.Context, spaceID uuid.UUID) ([]domain.File, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	files := []domain.File{}
	for _, file := range f.m.data.files {
		if file.SpaceID == spaceID {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (f *fileStore) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	file, ok := f.m.data.files[id]
	if !ok {
		return fmt.Errorf("file: %w", domain.ErrNotFound)
	}
	file.Name = name
	f.m.data.files[id] = file
	return nil
}

func (f *fileStore) UpdatePassword(ctx context.Context, id uuid.UUID, hash *string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	file, ok := f.m.data.files[id]
	if !ok {
		return fmt.Errorf("file: %w", domain.ErrNotFound)
	}
	file.PasswordHash = hash
	f.m.data.files[id] = file
	return nil
}

func (f *fileStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if _, ok := f.m.data.files[id]; !ok {
		return fmt.Errorf("file: %w", domain.ErrNotFound)
	}
	for _, l := range f.m.data.fileLinks {
		if l.FileID == id {
			return fmt.Errorf("file %s still has links", id)
		}
	}
	delete(f.m.data.files, id)
	return nil
}

func (f *fileStore) DeleteBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var n int64
	for id, file := range f.m.data.files {
		if file.SpaceID == spaceID {
			delete(f.m.data.files, id)
			n++
		}
	}
	return n, nil
}

type spaceStore struct{ m *Store }

func (s *spaceStore) Create(ctx context.Context, space *domain.Space) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	space.CreatedAt = s.m.now()
	space.UpdatedAt = space.CreatedAt
	s.m.data.spaces[space.ID] = *space
	return nil
}

func (s *spaceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Space, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	space, ok := s.m.data.spaces[id]
	if !ok {
		return nil, fmt.Errorf("space: %w", domain.ErrNotFound)
	}
	return &space, nil
}

func (s *spaceStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Space, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	spaces := []domain.Space{}
	for _, space := range s.m.data.spaces {
		if space.OwnerID == ownerID {
			spaces = append(spaces, space)
		}
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].Name < spaces[j].Name })
	return spaces, nil
}

func (s *spaceStore) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	space, ok := s.m.data.spaces[id]
	if !ok {
		return fmt.Errorf("space: %w", domain.ErrNotFound)
	}
	space.Name = name
	s.m.data.spaces[id] = space
	return nil
}

func (s *spaceStore) UpdatePassword(ctx context.Context, id uuid.UUID, hash *string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	space, ok := s.m.data.spaces[id]
	if !ok {
		return fmt.Errorf("space: %w", domain.ErrNotFound)
	}
	space.PasswordHash = hash
	s.m.data.spaces[id] = space
	return nil
}

func (s *spaceStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.data.spaces[id]; !ok {
		return fmt.Errorf("space: %w", domain.ErrNotFound)
	}
	delete(s.m.data.spaces, id)
	return nil
}

type linkStore struct{ m *Store }

func (l *linkStore) CreateFileLink(ctx context.Context, link *domain.FileLink) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.failCreate > 0 {
		l.m.failCreate--
		return fmt.Errorf("secret taken: %w", domain.ErrConflict)
	}
	for _, existing := range l.m.data.fileLinks {
		if existing.Secret == link.Secret {
			return fmt.Errorf("secret taken: %w", domain.ErrConflict)
		}
	}
	link.CreatedAt = l.m.now()
	link.UpdatedAt = link.CreatedAt
	l.m.data.fileLinks[link.ID] = copyFileLink(*link)
	return nil
}

func (l *linkStore) findFileLink(match func(domain.FileLink) bool) (*domain.FileLink, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, link := range l.m.data.fileLinks {
		if match(link) {
			c := copyFileLink(link)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("file link: %w", domain.ErrNotFound)
}

func (l *linkStore) FindFileLinkBySecret(ctx context.Context, secret string) (*domain.FileLink, error) {
	return l.findFileLink(func(link domain.FileLink) bool { return link.Secret == secret })
}

func (l *linkStore) GetFileLink(ctx context.Context, fileID uuid.UUID, secret string) (*domain.FileLink, error) {
	return l.findFileLink(func(link domain.FileLink) bool {
		return link.FileID == fileID && link.Secret == secret
	})
}

func (l *linkStore) FindActiveFileLink(ctx context.Context, fileID uuid.UUID, secret string) (*domain.FileLink, error) {
	return l.findFileLink(func(link domain.FileLink) bool {
		return link.FileID == fileID && link.Secret == secret && l.m.active(link)
	})
}

func (l *linkStore) listFileLinks(match func(domain.FileLink) bool) []domain.FileLink {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	links := []domain.FileLink{}
	for _, link := range l.m.data.fileLinks {
		if match(link) {
			links = append(links, copyFileLink(link))
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID.String() < links[j].ID.String() })
	return links
}

func (l *linkStore) ListFileLinks(ctx context.Context, fileID uuid.UUID, includeChildren bool) ([]domain.FileLink, error) {
	return l.listFileLinks(func(link domain.FileLink) bool {
		return link.FileID == fileID && (includeChildren || !link.Child())
	}), nil
}

func (l *linkStore) ListChildFileLinks(ctx context.Context, spaceLinkID uuid.UUID) ([]domain.FileLink, error) {
	return l.listFileLinks(func(link domain.FileLink) bool {
		return link.ParentSpaceLinkID != nil && *link.ParentSpaceLinkID == spaceLinkID
	}), nil
}

func (l *linkStore) UpdateFileLink(ctx context.Context, link *domain.FileLink) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	current, ok := l.m.data.fileLinks[link.ID]
	if !ok {
		return fmt.Errorf("file link: %w", domain.ErrNotFound)
	}
	if link.MaxDownloads != nil && current.Downloads > *link.MaxDownloads {
		return fmt.Errorf("downloads within quota: %w", domain.ErrConflict)
	}
	current.MaxDownloads = link.MaxDownloads
	current.ExpiresAt = link.ExpiresAt
	current.Notes = link.Notes
	current.UpdatedAt = l.m.now()
	l.m.data.fileLinks[link.ID] = copyFileLink(current)
	return nil
}

func (l *linkStore) DeleteFileLink(ctx context.Context, id uuid.UUID) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if _, ok := l.m.data.fileLinks[id]; !ok {
		return fmt.Errorf("file link: %w", domain.ErrNotFound)
	}
	delete(l.m.data.fileLinks, id)
	return nil
}

func (l *linkStore) deleteFileLinks(match func(domain.FileLink) bool) int64 {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var n int64
	for id, link := range l.m.data.fileLinks {
		if match(link) {
			delete(l.m.data.fileLinks, id)
			n++
		}
	}
	return n
}

func (l *linkStore) DeleteFileLinksByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	return l.deleteFileLinks(func(link domain.FileLink) bool { return link.FileID == fileID }), nil
}

func (l *linkStore) DeleteFileLinksByParent(ctx context.Context, spaceLinkID uuid.UUID) (int64, error) {
	return l.deleteFileLinks(func(link domain.FileLink) bool {
		return link.ParentSpaceLinkID != nil && *link.ParentSpaceLinkID == spaceLinkID
	}), nil
}

func (l *linkStore) DeleteFileLinksBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error) {
	l.m.mu.Lock()
	inSpace := map[uuid.UUID]bool{}
	for id, file := range l.m.data.files {
		if file.SpaceID == spaceID {
			inSpace[id] = true
		}
	}
	l.m.mu.Unlock()
	return l.deleteFileLinks(func(link domain.FileLink) bool { return inSpace[link.FileID] }), nil
}

func (l *linkStore) UpdateChildExpiry(ctx context.Context, spaceLinkID uuid.UUID, expiresAt *time.Time) (int64, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var n int64
	for id, link := range l.m.data.fileLinks {
		if link.ParentSpaceLinkID != nil && *link.ParentSpaceLinkID == spaceLinkID {
			link.ExpiresAt = expiresAt
			l.m.data.fileLinks[id] = copyFileLink(link)
			n++
		}
	}
	return n, nil
}

func (l *linkStore) IncrementDownloads(ctx context.Context, id uuid.UUID) (*domain.FileLink, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	link, ok := l.m.data.fileLinks[id]
	if !ok || link.Exhausted() {
		return nil, fmt.Errorf("file link gone or exhausted: %w", domain.ErrNotFound)
	}
	link.Downloads++
	l.m.data.fileLinks[id] = link
	c := copyFileLink(link)
	return &c, nil
}

func (l *linkStore) DeleteIfExhausted(ctx context.Context, id uuid.UUID) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	link, ok := l.m.data.fileLinks[id]
	if !ok || !link.Exhausted() {
		return false, nil
	}
	delete(l.m.data.fileLinks, id)
	return true, nil
}

func (l *linkStore) LockActiveFileLinks(ctx context.Context, ids []uuid.UUID) ([]domain.FileLink, error) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return l.listFileLinks(func(link domain.FileLink) bool {
		return wanted[link.ID] && l.m.active(link) && !link.Exhausted()
	}), nil
}

func (l *linkStore) DeleteExpiredFileLinks(ctx context.Context) (int64, error) {
	now := l.m.now()
	l.m.mu.Lock()
	expiredParents := map[uuid.UUID]bool{}
	for id, sl := range l.m.data.spaceLinks {
		if sl.Expired(now) {
			expiredParents[id] = true
		}
	}
	l.m.mu.Unlock()
	return l.deleteFileLinks(func(link domain.FileLink) bool {
		return link.Expired(now) || (link.ParentSpaceLinkID != nil && expiredParents[*link.ParentSpaceLinkID])
	}), nil
}

func (l *linkStore) CreateSpaceLink(ctx context.Context, link *domain.SpaceLink) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, existing := range l.m.data.spaceLinks {
		if existing.Secret == link.Secret {
			return fmt.Errorf("secret taken: %w", domain.ErrConflict)
		}
	}
	link.CreatedAt = l.m.now()
	link.UpdatedAt = link.CreatedAt
	l.m.data.spaceLinks[link.ID] = *link
	return nil
}

func (l *linkStore) findSpaceLink(match func(domain.SpaceLink) bool) (*domain.SpaceLink, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, link := range l.m.data.spaceLinks {
		if match(link) {
			return &link, nil
		}
	}
	return nil, fmt.Errorf("space link: %w", domain.ErrNotFound)
}

func (l *linkStore) FindSpaceLinkBySecret(ctx context.Context, secret string) (*domain.SpaceLink, error) {
	return l.findSpaceLink(func(link domain.SpaceLink) bool { return link.Secret == secret })
}

func (l *linkStore) GetSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) (*domain.SpaceLink, error) {
	return l.findSpaceLink(func(link domain.SpaceLink) bool {
		return link.SpaceID == spaceID && link.Secret == secret
	})
}

func (l *linkStore) FindActiveSpaceLink(ctx context.Context, spaceID uuid.UUID, secret string) (*domain.SpaceLink, error) {
	now := l.m.now()
	return l.findSpaceLink(func(link domain.SpaceLink) bool {
		return link.SpaceID == spaceID && link.Secret == secret && !link.Expired(now)
	})
}

func (l *linkStore) ListSpaceLinks(ctx context.Context, spaceID uuid.UUID) ([]domain.SpaceLink, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	links := []domain.SpaceLink{}
	for _, link := range l.m.data.spaceLinks {
		if link.SpaceID == spaceID {
			links = append(links, link)
		}
	}
	return links, nil
}

func (l *linkStore) UpdateSpaceLink(ctx context.Context, link *domain.SpaceLink) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if _, ok := l.m.data.spaceLinks[link.ID]; !ok {
		return fmt.Errorf("space link: %w", domain.ErrNotFound)
	}
	l.m.data.spaceLinks[link.ID] = *link
	return nil
}

func (l *linkStore) DeleteSpaceLink(ctx context.Context, id uuid.UUID) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if _, ok := l.m.data.spaceLinks[id]; !ok {
		return fmt.Errorf("space link: %w", domain.ErrNotFound)
	}
	for _, fl := range l.m.data.fileLinks {
		if fl.ParentSpaceLinkID != nil && *fl.ParentSpaceLinkID == id {
			return fmt.Errorf("space link %s still has children", id)
		}
	}
	delete(l.m.data.spaceLinks, id)
	return nil
}

func (l *linkStore) DeleteSpaceLinksBySpace(ctx context.Context, spaceID uuid.UUID) (int64, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var n int64
	for id, link := range l.m.data.spaceLinks {
		if link.SpaceID == spaceID {
			delete(l.m.data.spaceLinks, id)
			n++
		}
	}
	return n, nil
}

func (l *linkStore) DeleteExpiredSpaceLinks(ctx context.Context) (int64, error) {
	now := l.m.now()
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var n int64
	for id, link := range l.m.data.spaceLinks {
		if link.Expired(now) {
			delete(l.m.data.spaceLinks, id)
			n++
		}
	}
	return n, nil
}
