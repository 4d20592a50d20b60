package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ResourceType string

const (
	ResourceTypeFile  ResourceType = "file"
	ResourceTypeSpace ResourceType = "space"
)

// ChildLinkNotes: заметка, которой помечаются ссылки, выпущенные ссылкой пространства
const ChildLinkNotes = "Shared from space link"

// FileLink: публичная ссылка на файл
type FileLink struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	FileID            uuid.UUID  `json:"file_id" db:"file_id"`
	Secret            string     `json:"secret" db:"secret"`
	MaxDownloads      *int       `json:"max_downloads,omitempty" db:"max_downloads"`
	Downloads         int        `json:"downloads" db:"downloads"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ParentSpaceLinkID *uuid.UUID `json:"parent_space_link_id,omitempty" db:"parent_space_link_id"`
	Notes             *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired сообщает, истёк ли срок действия ссылки к моменту now
func (l *FileLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Exhausted сообщает, исчерпан ли лимит скачиваний
func (l *FileLink) Exhausted() bool {
	return l.MaxDownloads != nil && l.Downloads >= *l.MaxDownloads
}

// Child: ссылка выпущена ссылкой пространства
func (l *FileLink) Child() bool {
	return l.ParentSpaceLinkID != nil
}

// Remaining возвращает оставшееся количество скачиваний
func (l *FileLink) Remaining() Quota {
	if l.MaxDownloads == nil {
		return Unlimited()
	}
	left := *l.MaxDownloads - l.Downloads
	if left < 0 {
		left = 0
	}
	return Limited(left)
}

// SpaceLink: публичная ссылка на пространство. Собственного счётчика нет,
// лимиты задаются на дочерних FileLink.
type SpaceLink struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SpaceID   uuid.UUID  `json:"space_id" db:"space_id"`
	Secret    string     `json:"secret" db:"secret"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Notes     *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (l *SpaceLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Optional: поле частичного обновления. Set отличает отсутствующее поле
// от явно переданного null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null: явно переданное пустое значение (сбросить поле)
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Apply возвращает новое значение поля с учётом патча
func (o Optional[T]) Apply(current *T) *T {
	if !o.Set {
		return current
	}
	return o.Value
}

// FileLinkOptions: параметры создания и изменения ссылки на файл
type FileLinkOptions struct {
	MaxDownloads Optional[int]
	ExpiresAt    Optional[time.Time]
	Notes        Optional[string]
}

// SpaceLinkOptions: параметры создания и изменения ссылки на пространство
type SpaceLinkOptions struct {
	ExpiresAt Optional[time.Time]
	Notes     Optional[string]
}

// Quota: количество скачиваний либо "unlimited"
type Quota struct {
	limited bool
	value   int
}

func Unlimited() Quota { return Quota{} }

func Limited(n int) Quota { return Quota{limited: true, value: n} }

func (q Quota) IsUnlimited() bool { return !q.limited }

func (q Quota) Value() int { return q.value }

func (q Quota) MarshalJSON() ([]byte, error) {
	if !q.limited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(fmt.Sprintf("%d", q.value)), nil
}

func (q *Quota) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte(`"unlimited"`)) {
		*q = Unlimited()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quota must be a number or \"unlimited\": %w", err)
	}
	*q = Limited(n)
	return nil
}

// PublicLink: внешнее представление ссылки
type PublicLink struct {
	URL                string     `json:"url"`
	Secret             string     `json:"secret"`
	MaxDownloads       Quota      `json:"maxDownloads"`
	RemainingDownloads Quota      `json:"remainingDownloads"`
	ExpiresAt          *time.Time `json:"expiresAt"`
	Notes              *string    `json:"notes"`
}

// ShareURL собирает публичный адрес ссылки
func ShareURL(baseURL string, kind ResourceType, secret string) string {
	return fmt.Sprintf("%s/shares/%s/%s", strings.TrimRight(baseURL, "/"), kind, secret)
}

func NewFileLinkView(baseURL string, l *FileLink) PublicLink {
	maxDownloads := Unlimited()
	if l.MaxDownloads != nil {
		maxDownloads = Limited(*l.MaxDownloads)
	}
	return PublicLink{
		URL:                ShareURL(baseURL, ResourceTypeFile, l.Secret),
		Secret:             l.Secret,
		MaxDownloads:       maxDownloads,
		RemainingDownloads: l.Remaining(),
		ExpiresAt:          l.ExpiresAt,
		Notes:              l.Notes,
	}
}

func NewSpaceLinkView(baseURL string, l *SpaceLink) PublicLink {
	return PublicLink{
		URL:                ShareURL(baseURL, ResourceTypeSpace, l.Secret),
		Secret:             l.Secret,
		MaxDownloads:       Unlimited(),
		RemainingDownloads: Unlimited(),
		ExpiresAt:          l.ExpiresAt,
		Notes:              l.Notes,
	}
}
