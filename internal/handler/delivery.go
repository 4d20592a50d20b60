package handler

import (
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"sharebox/internal/domain"
	"sharebox/internal/service"
	"sharebox/internal/storage"
)

// delivery пишет содержимое в ответ и запоминает, начата ли передача.
// После первого байта статус ошибки клиенту уже не отправить.
type delivery struct {
	w       http.ResponseWriter
	started bool
}

func (d *delivery) file() service.FileDelivery {
	return func(file *domain.File, content storage.Object) error {
		contentType := content.ContentType()
		if contentType == "" {
			contentType = file.MIMEType
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		size := content.ContentLength()
		if size <= 0 {
			size = file.SizeBytes
		}
		return d.copy(file.Name, contentType, size, content)
	}
}

func (d *delivery) archive() service.ArchiveDelivery {
	return func(name string, content io.ReadSeeker, size int64) error {
		return d.copy(name, "application/zip", size, content)
	}
}

func (d *delivery) copy(name, contentType string, size int64, content io.Reader) error {
	h := d.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if size > 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	d.started = true
	d.w.WriteHeader(http.StatusOK)

	n, err := io.Copy(d.w, content)
	if err != nil {
		return fmt.Errorf("transfer interrupted after %d bytes: %w", n, err)
	}
	if size > 0 && n != size {
		return fmt.Errorf("transfer incomplete: %d of %d bytes", n, size)
	}
	return nil
}

// finish отвечает ошибкой, если передача ещё не начиналась
func (d *delivery) finish(op string, err error) {
	if err == nil {
		return
	}
	if d.started {
		log.Printf("[%s] download not counted: %v", op, err)
		return
	}
	respondError(d.w, op, err)
}
