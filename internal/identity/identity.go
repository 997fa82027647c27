// Package identity хранит разрешённую идентичность процессора.
//
// Идентичность устанавливается bootstrap-контроллером один раз после
// успешной инициализации и читается consumer'ом и health monitor'ом
// без блокировок.
package identity

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shaiso/flowproc/internal/domain"
)

// Holder — потокобезопасный держатель идентичности процессора.
// Нулевое значение готово к использованию (идентичность пустая).
type Holder struct {
	p atomic.Pointer[domain.Processor]
}

// Set устанавливает идентичность.
func (h *Holder) Set(p *domain.Processor) {
	cp := *p
	h.p.Store(&cp)
}

// Get возвращает копию идентичности и true, если она установлена.
func (h *Holder) Get() (domain.Processor, bool) {
	p := h.p.Load()
	if p == nil {
		return domain.Processor{}, false
	}
	return *p, true
}

// ID возвращает ID процессора или uuid.Nil, если идентичность пустая.
func (h *Holder) ID() uuid.UUID {
	p := h.p.Load()
	if p == nil {
		return uuid.Nil
	}
	return p.ID
}

// IsResolved проверяет, установлена ли идентичность.
func (h *Holder) IsResolved() bool {
	return h.ID() != uuid.Nil
}
