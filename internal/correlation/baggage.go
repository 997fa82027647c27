package correlation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderCarrier — propagation.TextMapCarrier поверх заголовков сообщения.
//
// Значения не-строкового типа игнорируются.
type HeaderCarrier map[string]any

var _ propagation.TextMapCarrier = HeaderCarrier(nil)

// Get возвращает строковое значение заголовка.
func (c HeaderCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Set записывает заголовок.
func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

// Keys возвращает имена заголовков.
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// BaggageFromHeaders извлекает correlation.id из W3C baggage в заголовках.
func BaggageFromHeaders(headers map[string]any) string {
	if len(headers) == 0 {
		return ""
	}
	ctx := propagation.Baggage{}.Extract(context.Background(), HeaderCarrier(headers))
	return baggage.FromContext(ctx).Member(BaggageKey).Value()
}

// HeaderFromHeaders возвращает значение X-Correlation-ID (строка или байты).
func HeaderFromHeaders(headers map[string]any) string {
	return HeaderCarrier(headers).Get(HeaderName)
}

// InjectBaggage добавляет correlation.id в baggage исходящих заголовков.
func InjectBaggage(headers map[string]any, correlationID string) error {
	member, err := baggage.NewMember(BaggageKey, correlationID)
	if err != nil {
		return fmt.Errorf("baggage member: %w", err)
	}
	bag, err := baggage.New(member)
	if err != nil {
		return fmt.Errorf("baggage: %w", err)
	}
	ctx := baggage.ContextWithBaggage(context.Background(), bag)
	propagation.Baggage{}.Inject(ctx, HeaderCarrier(headers))
	return nil
}
