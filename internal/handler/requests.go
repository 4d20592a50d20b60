package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sharebox/internal/domain"
)

const maxBodySize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type createSpaceRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"max=72"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type lockRequest struct {
	Password       string `json:"password" validate:"required,max=72"`
	RepeatPassword string `json:"repeatPassword" validate:"required"`
}

type unlockRequest struct {
	Password string `json:"password" validate:"required"`
}

// fileLinkRequest: тело создания и изменения ссылки на файл.
// Отсутствующее поле не меняется, null сбрасывает значение.
type fileLinkRequest struct {
	MaxDownloads domain.Optional[int]       `json:"maxDownloads"`
	ExpiresAt    domain.Optional[time.Time] `json:"expiresAt"`
	Notes        domain.Optional[string]    `json:"notes"`
}

func (r fileLinkRequest) options() domain.FileLinkOptions {
	return domain.FileLinkOptions{
		MaxDownloads: r.MaxDownloads,
		ExpiresAt:    r.ExpiresAt,
		Notes:        r.Notes,
	}
}

type spaceLinkRequest struct {
	ExpiresAt domain.Optional[time.Time] `json:"expiresAt"`
	Notes     domain.Optional[string]    `json:"notes"`
}

func (r spaceLinkRequest) options() domain.SpaceLinkOptions {
	return domain.SpaceLinkOptions{
		ExpiresAt: r.ExpiresAt,
		Notes:     r.Notes,
	}
}

// decodeJSON читает тело запроса и проверяет теги validate.
// Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return errors.New(describe(verrs))
		}
		return err
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// passwordFrom: пароль ресурса из заголовка X-File-Password или параметра password
func passwordFrom(r *http.Request) string {
	if p := r.Header.Get("X-File-Password"); p != "" {
		return p
	}
	return r.URL.Query().Get("password")
}
