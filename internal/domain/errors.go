package domain

import "errors"

var (
	// ErrNotFound: ресурс, ссылка или секрет не найдены (в том числе истёкшие ссылки)
	ErrNotFound = errors.New("not found")
	// ErrForbidden: нет прав владельца или попытка удалить дочернюю ссылку напрямую
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized: пароль требуется, но не передан или неверен
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict: действие нарушает инварианты лимита или срока
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput: некорректные входные данные
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal: сбой хранилища или сборщика архива
	ErrInternal = errors.New("internal failure")
)
