package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autoclaw/pkg/autoclaw/agent"
)

// newTasksCmd creates the `autoclaw tasks` command group.
func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduled tasks",
		Long: `List and control the agent's scheduled tasks.

Examples:
  autoclaw tasks list
  autoclaw tasks run cleanup_temp
  autoclaw tasks disable daily_summary`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List tasks with state and next run",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAgent(cmd, func(ctx context.Context, a *agent.Agent) error {
					out, _ := a.Execute(ctx, "tasks")
					fmt.Println(out)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "run <name>",
			Short: "Run a task immediately",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAgent(cmd, func(ctx context.Context, a *agent.Agent) error {
					if err := a.Scheduler.RunNow(ctx, args[0]); err != nil {
						return err
					}
					// RunNow dispatches async; give the task a moment.
					deadline := time.Now().Add(30 * time.Second)
					for time.Now().Before(deadline) {
						status, err := a.Scheduler.Status(args[0])
						if err != nil {
							return err
						}
						if !status.Running && status.RunCount > 0 {
							if status.LastErr != "" {
								return fmt.Errorf("task failed: %s", status.LastErr)
							}
							fmt.Printf("task %s completed\n", args[0])
							return nil
						}
						time.Sleep(100 * time.Millisecond)
					}
					return fmt.Errorf("task %s still running after 30s", args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "enable <name>",
			Short: "Enable a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAgent(cmd, func(_ context.Context, a *agent.Agent) error {
					return a.Scheduler.SetEnabled(args[0], true)
				})
			},
		},
		&cobra.Command{
			Use:   "disable <name>",
			Short: "Disable a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAgent(cmd, func(_ context.Context, a *agent.Agent) error {
					return a.Scheduler.SetEnabled(args[0], false)
				})
			},
		},
	)
	return cmd
}

// withAgent builds the agent from config, restores persisted task
// state, runs fn, and cleans up.
func withAgent(cmd *cobra.Command, fn func(context.Context, *agent.Agent) error) error {
	a, err := agent.New(configPath(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Scheduler.Restore(); err != nil {
		a.Logger().Warn("task restore failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return fn(ctx, a)
}
