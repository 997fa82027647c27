package cli

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewProcessorCmd создаёт команду состояния пода процессора.
func NewProcessorCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processor",
		Short: "Show processor identity, health and performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().ProcessorStatus()
			if err != nil {
				return err
			}

			id, name := "-", "-"
			if status.Processor != nil {
				id = status.Processor.ID.String()
				name = status.Processor.CompositeKey()
			}

			perf := status.Performance
			rows := []table.Row{
				{"Processor", name},
				{"ID", id},
				{"Pod", status.PodID},
				{"Status", statusText(status.Status)},
				{"Activities", perf.TotalActivities},
				{"Success rate", fmt.Sprintf("%.1f%%", perf.SuccessRate)},
				{"Avg execution", perf.AverageExecutionTime.Round(time.Millisecond)},
				{"Activities/min", fmt.Sprintf("%.2f", perf.ActivitiesPerMinute)},
				{"Health checks", status.Statistics.TotalChecks},
				{"Stored in cache", fmt.Sprintf("%.1f%%", status.Statistics.CacheStorageRate)},
			}

			outputFn().Details("Processor pod", rows, status)
			return nil
		},
	}

	cmd.AddCommand(newProcessorReadyCmd(clientFn, outputFn))
	return cmd
}

// NewQueuesCmd создаёт команду вывода глубин внутренних очередей.
func NewQueuesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show internal queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().ProcessorStatus()
			if err != nil {
				return err
			}

			rows := []table.Row{
				{"activity", status.Queues.Activity},
				{"response", status.Queues.Response},
			}
			outputFn().Print(table.Row{"QUEUE", "DEPTH"}, rows, status.Queues)
			return nil
		},
	}
}

func newProcessorReadyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check pod readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			probe, err := clientFn().Ready()
			if err != nil {
				return err
			}

			out := outputFn()
			out.Print(
				table.Row{"STATUS", "HEALTH", "RESOLVED"},
				[]table.Row{{probe.Status, probe.Health, strconv.FormatBool(probe.Resolved)}},
				probe,
			)
			if probe.Status != "ready" {
				return fmt.Errorf("pod is not ready")
			}
			return nil
		},
	}
}

// NewHealthCmd создаёт группу команд для снимков здоровья из общего кэша.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Read processor health snapshots",
	}

	cmd.AddCommand(newHealthGetCmd(clientFn, outputFn))
	return cmd
}

func newHealthGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get PROCESSOR_ID",
		Short: "Show the latest health snapshot of a processor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid processor id: %w", err)
			}

			resp, err := clientFn().HealthSnapshot(id)
			if err != nil {
				return err
			}

			out := outputFn()
			snap := resp.Snapshot

			names := make([]string, 0, len(snap.HealthChecks))
			for name := range snap.HealthChecks {
				names = append(names, name)
			}
			slices.Sort(names)

			rows := make([]table.Row, 0, len(names))
			for _, name := range names {
				check := snap.HealthChecks[name]
				detail := check.Description
				if check.Error != "" {
					detail = check.Error
				}
				rows = append(rows, table.Row{name, statusText(check.Status), detail})
			}

			out.Print(table.Row{"CHECK", "STATUS", "DETAIL"}, rows, resp)
			if !out.jsonMode {
				out.Success(fmt.Sprintf("%s %s: %s (pod %s, age %s)",
					snap.Version, snap.Name, snap.Status, snap.PodID, resp.Age.Round(time.Second)))
				if resp.Stale {
					out.Error("snapshot is stale: no replica has reported recently")
				}
			}
			return nil
		},
	}
}
