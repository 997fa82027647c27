// Package cli реализует инструмент командной строки FlowProc.
//
// # Обзор
//
// CLI — клиентская утилита для admin API пода процессора.
// Работает через HTTP и не импортирует internal/api.
//
// ## Client
//
// HTTP-клиент admin API: состояние пода, readiness и снимки здоровья
// из общего кэша.
//
//	client := cli.NewClient("http://localhost:8081")
//	status, err := client.ProcessorStatus()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (go-pretty) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
//   - processor [ready]
//   - queues
//   - health get PROCESSOR_ID
package cli
