// Package telemetry обеспечивает наблюдаемость процессора.
//
// Включает:
//   - logging.go — structured logging через slog, логгеры с полями корреляции
//   - metrics.go — Prometheus метрики
//
// Все компоненты пишут логи в едином формате
// и экспортируют метрики на /metrics endpoint.
package telemetry
