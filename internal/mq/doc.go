// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация терминальных событий activity
//   - consumer.go   — потребление команд с отложенной повторной доставкой
//
// Exchanges:
//   - flowproc.activities — fanout, команды на выполнение activity
//   - flowproc.events     — topic, activity.executed / activity.failed
//   - flowproc.dlq        — direct, dead letter queue
//
// Повторная доставка: ошибка обработчика перекладывает сообщение в
// <queue>.retry.<n> (TTL = n-я задержка), откуда оно возвращается в очередь
// команд. После последней задержки сообщение уходит в dlq.<queue>.
package mq
