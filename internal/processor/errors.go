package processor

import "errors"

// Ошибки процессора.
var (
	// ErrProcessorNotInitialized — идентичность процессора ещё не разрешена.
	// Команда возвращается транспорту на повторную доставку.
	ErrProcessorNotInitialized = errors.New("processor identity not initialized")

	// ErrHandoffFailed — команду не удалось поставить в очередь выполнения.
	ErrHandoffFailed = errors.New("activity handoff failed")

	// ErrInvalidCommand — тело команды не разбирается.
	ErrInvalidCommand = errors.New("invalid activity command")

	// ErrInputNotFound — входные данные по InputDataKey отсутствуют в кэше.
	ErrInputNotFound = errors.New("activity input data not found")

	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("processor already started")
)
