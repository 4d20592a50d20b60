package domain

import (
	"time"

	"github.com/google/uuid"
)

// File описывает загруженный файл внутри пространства
type File struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	MIMEType     string    `json:"mime_type" db:"mime_type"`
	SizeBytes    int64     `json:"size_bytes" db:"size_bytes"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	SpaceID      uuid.UUID `json:"space_id" db:"space_id"`
	StorageRef   string    `json:"-" db:"storage_ref"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Locked сообщает, защищён ли файл паролем
func (f *File) Locked() bool {
	return f.PasswordHash != nil && *f.PasswordHash != ""
}

type FileUpload struct {
	Name     string
	MIMEType string
	Size     int64
	SpaceID  uuid.UUID
	OwnerID  string
}

// FileInfo: представление файла для владельца
type FileInfo struct {
	File
	Locked bool         `json:"locked"`
	Links  []PublicLink `json:"links"`
}
