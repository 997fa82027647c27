package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/flowproc/internal/cache"
	"github.com/shaiso/flowproc/internal/correlation"
	"github.com/shaiso/flowproc/internal/health"
)

// ErrorCode — машиночитаемый код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// DataResponse — тело успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// errorMapping — HTTP статус и код для sentinel-ошибки.
type errorMapping struct {
	target error
	status int
	code   ErrorCode
}

// readErrors — ошибки чтения из общего кэша, по порядку проверки.
var readErrors = []errorMapping{
	{health.ErrSnapshotNotFound, http.StatusNotFound, ErrCodeNotFound},
	{cache.ErrUnavailable, http.StatusServiceUnavailable, ErrCodeCacheUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, DataResponse{Data: data})
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:          code,
		Message:       message,
		CorrelationID: w.Header().Get(correlation.HeaderName),
	}})
}

// writeReadError отвечает на ошибку чтения снимка.
// Неизвестные ошибки — 500 с логированием.
func writeReadError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, m := range readErrors {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				logger.Warn("health snapshot read failed", "error", err)
			}
			writeError(w, m.status, m.code, m.target.Error())
			return
		}
	}

	logger.Error("health snapshot read failed", "error", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}
