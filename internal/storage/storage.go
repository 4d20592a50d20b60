// Пакет storage описывает хранилище содержимого файлов. Ключом объекта служит File.StorageRef.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound: объекта с таким ключом нет
var ErrObjectNotFound = errors.New("object not found")

// Object: поток содержимого объекта
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// BlobStore: хранилище байтов файлов
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	// Delete не считает ошибкой отсутствие объекта
	Delete(ctx context.Context, key string) error
}

// NewObject оборачивает поток в Object
func NewObject(rc io.ReadCloser, contentLength int64, contentType string) Object {
	return &object{
		ReadCloser:    rc,
		contentLength: contentLength,
		contentType:   contentType,
	}
}

type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}
