// Package api содержит admin HTTP API пода процессора.
//
// Структура:
//   - handler.go           — Handler с DI (identity, processor, monitor, reader)
//   - routes.go            — chi роутер
//   - middleware.go        — middleware (logging, recovery, correlation id)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — ответы API
//   - processor_handler.go — /healthz, /readyz, /api/v1/processor
//   - health_handler.go    — /api/v1/health/{processorId}
//
// /metrics отдаёт Prometheus метрики процессора.
package api
