package domain

import (
	"time"

	"github.com/google/uuid"
)

// Space: именованный контейнер файлов пользователя
type Space struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (s *Space) Locked() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// SpaceFile: файл пространства в представлении владельца
type SpaceFile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
}

type SpaceContent struct {
	Space  Space        `json:"space"`
	Locked bool         `json:"locked"`
	Files  []SpaceFile  `json:"files"`
	Links  []PublicLink `json:"links"`
}

// GuestFileView: файл пространства в гостевом представлении.
// Поля ссылки заполнены только если у файла есть дочерняя ссылка
// под предъявленным SpaceLink.
type GuestFileView struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	SizeBytes          int64      `json:"size_bytes"`
	Locked             bool       `json:"locked"`
	ShareURL           string     `json:"share_url,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	DownloadsRemaining *Quota     `json:"downloads_remaining,omitempty"`
}

type GuestSpaceView struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	OwnerID   string          `json:"owner_id"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Files     []GuestFileView `json:"files"`
}
