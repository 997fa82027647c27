package correlation

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithID кладёт correlation id в контекст для исходящих вызовов.
func WithID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext извлекает correlation id из контекста.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
