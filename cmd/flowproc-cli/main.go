// FlowProc CLI — инструмент командной строки для admin API
// пода процессора.
//
// Использование:
//
//	flowproc [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	processor   Состояние пода (identity, health, performance)
//	queues      Глубины внутренних очередей
//	health get  Снимок здоровья процессора из общего кэша
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowproc/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "flowproc",
		Short:         "FlowProc CLI — processor pod inspection tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8082", "Processor admin API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewProcessorCmd(clientFn, outputFn),
		cli.NewQueuesCmd(clientFn, outputFn),
		cli.NewHealthCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
