package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sharebox/internal/archive"
	"sharebox/internal/domain"
	"sharebox/internal/repository/memory"
	"sharebox/internal/storage"
)

const testBaseURL = "https://share.example.com"

var (
	owner    = &domain.Caller{ID: "owner-1", Role: domain.RoleUser}
	stranger = &domain.Caller{ID: "stranger", Role: domain.RoleUser}
	admin    = &domain.Caller{ID: "root", Role: domain.RoleAdmin}
)

// fixture собирает сервисы поверх in-memory хранилищ
type fixture struct {
	store  *memory.Store
	blobs  *memBlobs
	hasher PasswordHasher

	permissions *PermissionService
	links       *LinkService
	access      *AccessEvaluator
	accountant  *DownloadAccountant
	shares      *ShareService
	files       *FileService
	spaces      *SpaceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	blobs := newMemBlobs()
	hasher := NewBcryptHasher(bcrypt.MinCost)
	archiver := archive.NewBuilder(t.TempDir())

	f := &fixture{store: store, blobs: blobs, hasher: hasher}
	f.permissions = NewPermissionService(store)
	f.links = NewLinkService(store, NewSecretGenerator(), testBaseURL)
	f.access = NewAccessEvaluator(store, hasher, testBaseURL)
	f.accountant = NewDownloadAccountant(store)
	f.shares = NewShareService(f.access, f.accountant, blobs, archiver)
	f.files = NewFileService(store, blobs, hasher, f.permissions, f.links)
	f.spaces = NewSpaceService(store, blobs, hasher, f.permissions, f.links, archiver)
	return f
}

// setNow сдвигает часы всех компонентов, которые сравнивают время
func (f *fixture) setNow(now time.Time) {
	clock := func() time.Time { return now }
	f.store.SetClock(clock)
	f.links.now = clock
	f.access.now = clock
}

func (f *fixture) space(t *testing.T, name string) *domain.Space {
	t.Helper()
	space, err := f.spaces.Create(context.Background(), owner, name, "")
	require.NoError(t, err)
	return space
}

func (f *fixture) upload(t *testing.T, spaceID uuid.UUID, name, content string) *domain.File {
	t.Helper()
	file, err := f.files.Upload(context.Background(), owner, domain.FileUpload{
		Name:     name,
		MIMEType: "text/plain",
		Size:     int64(len(content)),
		SpaceID:  spaceID,
	}, strings.NewReader(content))
	require.NoError(t, err)
	return file
}

func (f *fixture) fileLink(t *testing.T, fileID uuid.UUID, opts domain.FileLinkOptions) *domain.FileLink {
	t.Helper()
	link, err := f.links.CreateFileLink(context.Background(), fileID, opts)
	require.NoError(t, err)
	return link
}

// collect: FileDelivery, читающая содержимое целиком
func collect(dst *strings.Builder) FileDelivery {
	return func(file *domain.File, content storage.Object) error {
		_, err := io.Copy(dst, content)
		return err
	}
}

func discard() FileDelivery {
	return func(file *domain.File, content storage.Object) error {
		_, err := io.Copy(io.Discard, content)
		return err
	}
}

func ptr[T any](v T) *T { return &v }
