// FlowProc Processor — pod процессора распределённых workflow.
//
// Pod:
//   - Разрешает идентичность процессора у processor manager (с повторами)
//   - Получает команды выполнения activity из RabbitMQ
//   - Выполняет их в пуле воркеров с повторами
//   - Пишет результаты в распределённый кэш и публикует события
//   - Периодически пишет снимок здоровья в кэш
//
// Реплики одного процессора масштабируются горизонтально.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "flowproc-processor",
		Short:         "FlowProc processor pod",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (env FLOWPROC_* overrides)")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newConfigCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
