// Package correlation разрешает correlation id входящей команды.
//
// Порядок источников фиксирован и воспроизводится точно, чтобы не
// рвать трассу между hop'ами:
//
//  1. correlation id транспорта (AMQP CorrelationId)
//  2. явный заголовок X-Correlation-ID
//  3. поле correlation_id в теле сообщения
//  4. значение correlation.id из W3C baggage
//  5. иначе — новый идентификатор
//
// Resolve — чистая функция: все источники передаются параметрами,
// живой tracing runtime для тестов не нужен.
package correlation

import (
	"strings"

	"github.com/google/uuid"
)

// HeaderName — заголовок с явным correlation id.
const HeaderName = "X-Correlation-ID"

// BaggageKey — ключ correlation id в W3C baggage.
const BaggageKey = "correlation.id"

// Source — источник, из которого взят correlation id.
type Source string

const (
	SourceTransport Source = "transport"
	SourceHeader    Source = "header"
	SourceBody      Source = "body"
	SourceBaggage   Source = "baggage"
	SourceGenerated Source = "generated"
)

// Sources — кандидаты на correlation id в порядке приоритета.
type Sources struct {
	Transport string
	Header    string
	Body      string
	Baggage   string
}

// Resolve возвращает первый валидный (непустой, парсится как UUID, не uuid.Nil)
// correlation id из sources. Если валидных нет — вызывает newID.
func Resolve(s Sources, newID func() uuid.UUID) (uuid.UUID, Source) {
	candidates := []struct {
		value  string
		source Source
	}{
		{s.Transport, SourceTransport},
		{s.Header, SourceHeader},
		{s.Body, SourceBody},
		{s.Baggage, SourceBaggage},
	}

	for _, c := range candidates {
		if id, ok := parse(c.value); ok {
			return id, c.source
		}
	}

	if newID == nil {
		newID = uuid.New
	}
	return newID(), SourceGenerated
}

func parse(value string) (uuid.UUID, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
