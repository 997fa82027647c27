package managerclient

import "errors"

// Ошибки клиентов менеджеров.
var (
	// ErrNotFound — сущность не найдена (HTTP 404). Ожидаемый исход, не сбой.
	ErrNotFound = errors.New("not found")

	// ErrConflict — сущность уже существует (HTTP 409).
	ErrConflict = errors.New("conflict")

	// ErrUnavailable — менеджер недоступен или ответил 5xx.
	ErrUnavailable = errors.New("manager unavailable")

	// ErrBadResponse — ответ менеджера не удалось разобрать.
	ErrBadResponse = errors.New("bad manager response")
)
