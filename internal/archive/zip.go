// Пакет archive собирает zip-архивы из файлов хранилища
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry: файл архива. Open вызывается только при записи этого файла.
type Entry struct {
	Name     string
	Modified time.Time
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

// Archive: готовый архив во временном файле
type Archive struct {
	Path    string
	Size    int64
	Entries int
}

// Open открывает архив на чтение
func (a *Archive) Open() (*os.File, error) {
	return os.Open(a.Path)
}

// Remove удаляет временный файл архива
func (a *Archive) Remove() {
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Archive] failed to remove %s: %v", a.Path, err)
	}
}

type Builder struct {
	tempDir string
}

func NewBuilder(tempDir string) *Builder {
	return &Builder{tempDir: tempDir}
}

// Build пишет архив во временный файл. При любой ошибке частично
// собранный файл удаляется.
func (b *Builder) Build(ctx context.Context, entries []Entry) (archive *Archive, err error) {
	if b.tempDir != "" {
		if err := os.MkdirAll(b.tempDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(b.tempDir, "space-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Printf("[Archive] failed to remove partial archive %s: %v", tmp.Name(), rmErr)
			}
		}
	}()

	zw := zip.NewWriter(tmp)
	names := newNameSet()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := writeEntry(ctx, zw, names.unique(entry.Name), entry); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}

	info, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	return &Archive{Path: tmp.Name(), Size: info.Size(), Entries: len(entries)}, nil
}

func writeEntry(ctx context.Context, zw *zip.Writer, name string, entry Entry) error {
	src, err := entry.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", entry.Name, err)
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entry.Modified,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// nameSet выдаёт уникальные имена внутри архива: report.pdf, report (1).pdf, ...
type nameSet map[string]struct{}

func newNameSet() nameSet {
	return nameSet{}
}

func (s nameSet) unique(name string) string {
	name = sanitize(name)
	candidate := name
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, taken := s[candidate]; !taken {
			s[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
}

// sanitize убирает из имени каталоги, чтобы архив был плоским
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base("/" + name)
	if name == "/" || name == "." || name == "" {
		return "file"
	}
	return name
}
