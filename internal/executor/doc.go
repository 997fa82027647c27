// Package executor определяет контракт бизнес-логики процессора.
//
// # Обзор
//
// Executor — единственная точка расширения процессора. Пул выполнения
// вызывает его для каждой activity и не знает, что он делает:
//
//	results, err := exec.Execute(ctx, cc, entities, input)
//
// Ошибка по умолчанию восстановима: пул повторит попытку в пределах
// бюджета (MaxRetries). Если повтор бессмысленен (невалидный вход,
// 4xx от внешнего сервиса), executor оборачивает ошибку в Permanent.
//
// # Встроенные executor'ы
//
//   - transform — pass-through сущностей и входных данных
//   - http — делегирование удалённому сервису
//   - delay — ожидание (нагрузочные тесты)
//
// Тип выбирается конфигурацией processor.executor и создаётся через Registry:
//
//	exec, err := executor.NewRegistry().Build(cfg.Processor.Executor, cfg.Processor.ExecutorConfig)
package executor
