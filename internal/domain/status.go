package domain

// HealthStatus — состояние процессора с точки зрения health monitor.
//
// Жизненный цикл пода:
//
//	UNINITIALIZED → INITIALIZING → HEALTHY ⇄ DEGRADED ⇄ UNHEALTHY
//	                             (любое) → STOPPED (явный shutdown)
type HealthStatus string

const (
	// HealthStatusUninitialized — под стартовал, bootstrap ещё не запускался.
	HealthStatusUninitialized HealthStatus = "UNINITIALIZED"

	// HealthStatusInitializing — идёт разрешение идентичности процессора.
	HealthStatusInitializing HealthStatus = "INITIALIZING"

	// HealthStatusHealthy — все проверки пройдены.
	HealthStatusHealthy HealthStatus = "HEALTHY"

	// HealthStatusDegraded — процессор работает, но часть проверок не пройдена.
	HealthStatusDegraded HealthStatus = "DEGRADED"

	// HealthStatusUnhealthy — процессор не может выполнять activities.
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// HealthStatusStopped — под остановлен.
	HealthStatusStopped HealthStatus = "STOPPED"
)

// IsServing возвращает true, если процессор принимает activities.
func (s HealthStatus) IsServing() bool {
	switch s {
	case HealthStatusHealthy, HealthStatusDegraded:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true, если статус финальный.
func (s HealthStatus) IsTerminal() bool {
	return s == HealthStatusStopped
}

// Severity возвращает порядок статуса проверки для агрегации (больше — хуже).
func (s HealthStatus) Severity() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	case HealthStatusUnhealthy:
		return 2
	default:
		return 3
	}
}

// Worst возвращает худший из двух статусов.
func Worst(a, b HealthStatus) HealthStatus {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}
