// Package processor — runtime процессора: приём команд, выполнение activities
// и публикация результатов.
//
// # Конвейер
//
//	RabbitMQ consumer ──► ActivityQueue ──► execution workers ──► ResponseQueue ──► response workers
//	  (HandleActivityCommand)  (bounded)     (Executor, retry)       (bounded)      (schema, cache, event)
//
// Consumer только разрешает correlation id, сверяет идентичность и ставит
// запрос в очередь: подтверждение сообщения не ждёт выполнения.
//
// Воркеры выполнения берут по одному запросу и повторяют вызов executor'а
// до MaxRetries попыток. Исчерпание попыток — тоже терминальный исход:
// воркер строит элемент-неудачу и передаёт его дальше.
//
// Воркеры ответов проверяют выход по output schema, один раз пишут результат
// в activity-data map (SetIfAbsent: повторная доставка той же команды не
// перетирает результат) и публикуют ровно одно событие:
// activity.executed или activity.failed.
//
// # Остановка
//
// Stop останавливает consumer, закрывает очередь команд, дожидается
// воркеров выполнения (не дольше ShutdownTimeout), затем закрывает очередь
// ответов и дожидается воркеров ответов. Элементы, прерванные по таймауту,
// не сообщаются и ядром не повторяются.
package processor
