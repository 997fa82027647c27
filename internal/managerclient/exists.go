package managerclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// FailSafe — ответ валидатора, когда менеджер недоступен.
type FailSafe int

const (
	// AssumeExists — считать, что сущность существует.
	// Для проверок перед удалением: блокирует удаление того, на что могут ссылаться.
	AssumeExists FailSafe = iota

	// AssumeMissing — считать, что сущности нет.
	// Для проверок перед созданием ссылки: не даёт сослаться на непроверенное.
	AssumeMissing
)

func (f FailSafe) String() string {
	if f == AssumeMissing {
		return "assume-missing"
	}
	return "assume-exists"
}

// ExistenceValidator проверяет существование сущности в другом менеджере.
//
// Направление fail-safe задаётся явно при создании и не меняется:
// одна и та же инстанция всегда отвечает одинаково при сбое.
type ExistenceValidator struct {
	client
	entity   string
	failSafe FailSafe
	logger   *slog.Logger
}

// NewExistenceValidator создаёт валидатор для /api/<entity>/....
func NewExistenceValidator(baseURL, entity string, failSafe FailSafe, timeout time.Duration, logger *slog.Logger) *ExistenceValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExistenceValidator{
		client:   newClient(baseURL, timeout),
		entity:   entity,
		failSafe: failSafe,
		logger:   logger.With("component", "exists-validator", "entity", entity, "fail_safe", failSafe.String()),
	}
}

// FailSafe возвращает направление fail-safe.
func (v *ExistenceValidator) FailSafe() FailSafe {
	return v.failSafe
}

// Exists — GET /api/<entity>/<id>/exists.
func (v *ExistenceValidator) Exists(ctx context.Context, id uuid.UUID) bool {
	return v.check(ctx, "/api/"+url.PathEscape(v.entity)+"/"+id.String()+"/exists")
}

// RelationExists — GET /api/<entity>/<relation>/<id>/exists.
func (v *ExistenceValidator) RelationExists(ctx context.Context, relation string, id uuid.UUID) bool {
	return v.check(ctx, "/api/"+url.PathEscape(v.entity)+"/"+url.PathEscape(relation)+"/"+id.String()+"/exists")
}

func (v *ExistenceValidator) check(ctx context.Context, path string) bool {
	var exists bool
	err := v.do(ctx, http.MethodGet, path, nil, &exists)
	if err == nil {
		return exists
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}

	fallback := v.failSafe == AssumeExists
	v.logger.Warn("existence check failed, using fail-safe",
		"path", path,
		"assumed", fallback,
		"error", err,
	)
	return fallback
}
