package bootstrap

import "errors"

// Ошибки инициализации.
var (
	// ErrInitializationFailed — идентичность не разрешена за MaxAttempts попыток.
	ErrInitializationFailed = errors.New("processor initialization failed")

	// ErrSchemaMissing — схема, на которую ссылается процессор, не найдена.
	ErrSchemaMissing = errors.New("referenced schema does not exist")
)
