package executor

import (
	"errors"
	"fmt"
)

// Ошибки executor'ов.
var (
	// ErrUnknownExecutor — нет фабрики для типа executor'а.
	ErrUnknownExecutor = errors.New("unknown executor")

	// ErrInvalidConfig — некорректная конфигурация executor'а.
	ErrInvalidConfig = errors.New("invalid executor config")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)

// permanentError помечает ошибку, повтор которой не имеет смысла.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неустранимую: пул выполнения не будет
// повторять попытку локально. nil остаётся nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка (или её причина) как неустранимая.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Permanentf — сокращение для Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}
